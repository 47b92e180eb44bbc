// Package main provides the toolcall command-line client.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/minhyannv/toolcall/pkg/render"
)

// cliEnv is everything the command reads from or writes to the process.
type cliEnv struct {
	getenv    func(string) string
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	stdinTTY  bool
	stdoutTTY bool
	stderrTTY bool
}

// main is the program entry point.
func main() {
	// Existing variables win over .env entries.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], cliEnv{
		getenv:    os.Getenv,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdinTTY:  render.IsTerminal(os.Stdin),
		stdoutTTY: render.IsTerminal(os.Stdout),
		stderrTTY: render.IsTerminal(os.Stderr),
	})
	stop()
	os.Exit(code)
}
