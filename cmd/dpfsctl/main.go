// Command dpfsctl is the operator CLI companion to the cmd/dpfs-*
// device-emulation binaries.
package main

import (
	"os"

	"github.com/dpfs-project/dpfs/cmd/dpfsctl/commands"
)

func main() {
	if err := commands.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
