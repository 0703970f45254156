/*
main.go - matrixctl entry point

PURPOSE:
  Offline access to the capacity matrix straight from a SQLite database,
  without running the server.

COMMANDS:
  export     Write the matrix as CSV or JSON
  validate   Check a generated matrix, or a previously exported file
  print      Show the skills × months grid
  summary    Show a client (or liaison) task summary

EXAMPLES:
  matrixctl export --db capacity.db --mode actual --as-of 2026-01 -o jan.csv
  matrixctl validate --file jan.csv
  matrixctl print --db capacity.db --skills Junior,Senior --to 2026-06
  matrixctl summary abc123 --db capacity.db --from 2026-01-01 --to 2026-03-31

SEE ALSO:
  - commands.go: Command definitions
  - export/: Serialization and parsing
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
