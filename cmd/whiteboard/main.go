// Command whiteboard is the entry point for the whiteboard study assistant.
// It ingests Wikipedia articles into a topic-scoped vector index, retrieves
// relevant chunks for queries, and generates lessons with quizzes — as a CLI
// (via Cobra) or an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/whiteboard-app/whiteboard-go/cmd/whiteboard/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
