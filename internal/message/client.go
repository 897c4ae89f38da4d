// Package message obtains one-line commit summaries for a diff from an
// external text-generation service.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrMissingAPIKey means no credential is configured. The pipeline
	// reports it per run instead of refusing to start, so exporting the
	// key later just makes the next run succeed.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY environment variable is not set")

	// ErrRateLimited means the service kept throttling past the retry
	// budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNoChoices means the response was well-formed transport-wise but
	// carried no completion to extract.
	ErrNoChoices = errors.New("response contained no choices")

	// ErrEmptyMessage means the candidate summary was empty once
	// sanitized.
	ErrEmptyMessage = errors.New("generated summary is empty")
)

// Request carries the context the service needs to describe one delta.
type Request struct {
	AuthorName  string
	AuthorEmail string
	When        time.Time // local time, offset included in the prompt
	Diff        string
}

// Generator is the capability the pipeline depends on; transports are
// interchangeable behind it.
type Generator interface {
	GenerateSummary(ctx context.Context, req Request) (string, error)
}

const (
	// The API budget is expressed in tokens with no cheap way to count
	// them client-side; reserve 100 tokens for the completion and assume
	// roughly two characters per token for the rest, as a conservative
	// bound that still fits most single-edit changes.
	promptBudgetChars = (2048 - 100) * 2

	maxSummaryTokens = 100

	systemInstruction = "You write commit messages for work-in-progress snapshots. " +
		"Reply with exactly one concise line in the imperative mood describing the change. " +
		"A conventional \"type: description\" prefix is welcome. " +
		"No quotes, no explanations, no issue references."
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL and HTTPClient override the transport; both are mainly for
	// tests.
	BaseURL    string
	HTTPClient *http.Client

	// MaxTries bounds attempts for rate-limited calls; other failures are
	// never retried.
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.MaxTries == 0 {
		c.MaxTries = 8
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = time.Minute
	}
	return c
}

// OpenAIClient implements Generator over the chat-completions API.
type OpenAIClient struct {
	cfg Config
	api *openai.Client
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	cfg = cfg.withDefaults()
	c := &OpenAIClient{cfg: cfg}
	if cfg.APIKey == "" {
		return c
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}
	c.api = openai.NewClientWithConfig(apiCfg)
	return c
}

func (c *OpenAIClient) GenerateSummary(ctx context.Context, req Request) (string, error) {
	if c.api == nil {
		return "", ErrMissingAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		MaxTokens:   maxSummaryTokens,
		Temperature: 0.7,
	}

	operation := func() (openai.ChatCompletionResponse, error) {
		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			if isRateLimit(err) {
				return resp, err
			}
			return resp, backoff.Permanent(err)
		}
		return resp, nil
	}
	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("generation throttled, backing off",
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		if isRateLimit(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	summary := Sanitize(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptyMessage
	}
	return summary, nil
}

func (c *OpenAIClient) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	return b
}

// buildPrompt renders the authorship header followed by the diff,
// truncated from the front to the remaining character budget.
func buildPrompt(req Request) string {
	header := fmt.Sprintf("Author: %s <%s>\nDate:   %s",
		req.AuthorName,
		req.AuthorEmail,
		req.When.Format("Mon Jan 2 15:04:05 2006 -0700"),
	)
	budget := promptBudgetChars - len(header)
	if budget < 0 {
		budget = 0
	}
	diff := req.Diff
	if runes := []rune(diff); len(runes) > budget {
		diff = string(runes[:budget])
	}
	return header + diff
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests
}
