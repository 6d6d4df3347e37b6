// Command anchorctl is the anchor engine's CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/anchorlab/anchorengine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
