package git

import "strings"

// recordSeparator prefixes every rendered diff; the generation request
// relies on it to separate the context header from the patch text.
const recordSeparator = "\n\n"

// Line origins for content lines. Structural lines (file headers, hunk
// headers, binary notices) carry origin 0 and keep their raw text.
const (
	OriginAdd     = '+'
	OriginRemove  = '-'
	OriginContext = ' '
)

type Line struct {
	Origin byte
	Text   string
}

// Record is the ordered textual diff between a wip tree and the working
// tree, built fresh for each pipeline run.
type Record struct {
	lines []Line
}

func (r *Record) addStructural(text string) {
	r.lines = append(r.lines, Line{Text: text})
}

func (r *Record) addContent(origin byte, text string) {
	r.lines = append(r.lines, Line{Origin: origin, Text: text})
}

// Empty reports whether the record carries no lines at all, i.e. the
// working tree matches the wip tree and the run must not commit.
func (r *Record) Empty() bool {
	return len(r.lines) == 0
}

func (r *Record) Lines() []Line {
	return r.lines
}

// Text renders the record with the fixed separator prefix, content lines
// re-joined with their origin tag.
func (r *Record) Text() string {
	var b strings.Builder
	b.WriteString(recordSeparator)
	for _, line := range r.lines {
		if line.Origin != 0 {
			b.WriteByte(line.Origin)
		}
		b.WriteString(line.Text)
	}
	return b.String()
}
