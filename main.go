package main

import (
	"log"

	"github.com/benwr/gwipt/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("gwipt: %v", err)
	}
}
