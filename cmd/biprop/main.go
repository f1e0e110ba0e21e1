// Command biprop manages directory-backed simulation cases for the
// bipropellant thruster workflow and supervises the external mesh and
// solver tools.
package main

import (
	"os"

	"github.com/nextfoam/biprop/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
