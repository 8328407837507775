// responder answers short Japanese utterances from statistics it learns per
// user: co-occurrence graphs, bigram counts and a strategy bandit.
package main

import (
	"os"

	"github.com/danielpatrickdp/adaptive-state/responder/cmd/responder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
