package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNoPrompt = errors.New("no prompt provided: pass it as an argument or on standard input")

type readResult struct {
	data []byte
	err  error
}

// readPrompt takes the prompt from the arguments, else from standard input.
// A terminal on stdin is read until EOF (Ctrl+D). Cancelling ctx abandons the
// read.
func readPrompt(ctx context.Context, args []string, env cliEnv) (string, error) {
	if p := strings.TrimSpace(strings.Join(args, " ")); p != "" {
		return p, nil
	}
	if env.stdin == nil {
		return "", errNoPrompt
	}
	if env.stdinTTY {
		_, _ = fmt.Fprintln(env.stderr, "Enter your prompt (press Ctrl+D when done):")
	}

	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(env.stdin)
		done <- readResult{data: data, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("read prompt: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return "", fmt.Errorf("read prompt: %w", res.err)
	}
	// An interrupt may land together with EOF.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	p := strings.TrimSpace(string(res.data))
	if p == "" {
		return "", errNoPrompt
	}
	return p, nil
}
