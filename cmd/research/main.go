// Research drives long-running deep-research jobs through intake,
// planning, step execution, synthesis, and artifact publication, resuming
// cleanly after crashes via a durable SQLite-backed job queue.
package main

import (
	"os"
	"runtime/debug"

	"github.com/oremus-labs/research-orchestrator/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
