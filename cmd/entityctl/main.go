// entityctl is a thin command-line front door over the sync and
// reflect packages: it plans a schema-synchronization script for the
// process-wide default registry and introspects a live database.
// Programs with their own registries call the library directly; this
// binary exists for quick inspection against entity.Default.
package main

import (
	"fmt"
	"os"

	"github.com/entropydb/entity/cmd/entityctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
