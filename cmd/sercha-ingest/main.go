// Command sercha-ingest runs the semantic search ingestion pipeline.
package main

import (
	"os"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBuilder(build)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
