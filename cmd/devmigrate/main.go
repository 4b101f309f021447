// Command devmigrate copies or moves input-device settings between devices
// in a vendor application's SQLite store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/devmigrate/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewRootCommand())
	stop()
	os.Exit(code)
}
