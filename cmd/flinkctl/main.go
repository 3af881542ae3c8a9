// flinkctl deploys and manages jobs on a Flink job manager.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"flinkctl/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
