// Command agentharness is the host-side control plane for one agent task
// (spec.md §1): it starts, runs, and tears down for the lifetime of a
// single task, unlike the donor's long-running VM-provisioning CLI.
package main

import (
	"fmt"
	"os"

	"github.com/harnessd/agentharness/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
