// Command hearken is the main entry point for the Hearken listening server.
//
// Usage:
//
//	hearken [--config path] <command> [args]
//
// Commands:
//
//	serve      - Run the ingest and ops server
//	profile    - Voice profile maintenance (health, rollback, freeze, unfreeze)
package main

import (
	"fmt"
	"os"

	"github.com/MrWong99/hearken/cmd/hearken/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hearken: %v\n", err)
		os.Exit(1)
	}
}
