// wikidex indexes the OSRS wiki into a pgvector knowledge store and serves
// semantic search over it.
package main

import (
	"fmt"
	"os"

	"github.com/askbob-ai/wikidex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
