// Command cartsync runs the cart service and drives carts from the shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/cartsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
