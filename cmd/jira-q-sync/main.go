// Command jira-q-sync synchronises Jira issues into a managed search index.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
