// Command wraith builds a project and writes lint-fixed copies of its sources
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/poltergeist/wraith/pkg/cli"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg := cli.NewConfig()
	cfg.Version = version
	err := cli.NewCLI(cfg).ExecuteContext(ctx, os.Args[1:])
	stop()

	if err != nil {
		if !errors.Is(err, cli.ErrCompilationFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
