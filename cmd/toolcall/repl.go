package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/minhyannv/toolcall/pkg/agent"
	"github.com/minhyannv/toolcall/pkg/render"
)

var chatSuggestions = []prompt.Suggest{
	{Text: "/clear", Description: "Clear conversation history"},
	{Text: "/help", Description: "Show available commands"},
	{Text: "/exit", Description: "End the session"},
}

// chatSession is an interactive conversation that keeps history between
// prompts.
type chatSession struct {
	ctx     context.Context
	loop    *agent.AgentLoop
	printer *render.Printer
	stderr  io.Writer
	verbose bool

	done        bool
	interrupted bool
	// err is the error that ended the session early.
	err error
}

// runPrompt reads lines with go-prompt; used when stdin is a terminal.
// The terminal is in raw mode while idle, so Ctrl+C arrives as a key and is
// bound to interrupt the session.
func (s *chatSession) runPrompt() error {
	printWelcome(s.stderr)
	p := prompt.New(
		func(line string) {
			if s.handleLine(line) {
				s.done = true
			}
		},
		chatCompleter,
		prompt.OptionPrefix("> "),
		prompt.OptionTitle("toolcall"),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn:  func(*prompt.Buffer) { s.interrupt() },
		}),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return s.shouldExit()
		}),
	)
	p.Run()
	return s.result()
}

// interrupt ends the session as a user cancellation.
func (s *chatSession) interrupt() {
	s.interrupted = true
}

func (s *chatSession) shouldExit() bool {
	return s.done || s.interrupted || s.ctx.Err() != nil
}

// result is the error the session ended with, if any.
func (s *chatSession) result() error {
	switch {
	case s.err != nil:
		return s.err
	case s.interrupted:
		return fmt.Errorf("chat interrupted: %w", context.Canceled)
	case s.ctx.Err() != nil:
		return fmt.Errorf("chat ended: %w", s.ctx.Err())
	}
	return nil
}

// runScanner reads one prompt per line from in.
func (s *chatSession) runScanner(in io.Reader) error {
	if in == nil {
		return fmt.Errorf("input reader is required")
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := s.ctx.Err(); err != nil {
			return fmt.Errorf("chat ended: %w", err)
		}
		if !scanner.Scan() {
			break
		}
		if s.handleLine(scanner.Text()) {
			break
		}
	}
	if s.err != nil {
		return s.err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// handleLine processes one line and reports whether the session should end.
func (s *chatSession) handleLine(line string) bool {
	input := strings.TrimSpace(line)
	switch strings.ToLower(input) {
	case "":
		return false
	case "exit", "quit", "/exit", "/quit":
		return true
	case "/clear":
		s.loop.Reset()
		_, _ = fmt.Fprintln(s.stderr, "Conversation history cleared.")
		return false
	case "/help":
		printHelp(s.stderr)
		return false
	}

	res, err := s.loop.Chat(s.ctx, input)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.err = err
			return true
		}
		_, _ = fmt.Fprintf(s.stderr, "Error: %v\n", err)
		return false
	}
	if err := s.printer.Print(res.Content); err != nil {
		s.err = fmt.Errorf("write output: %w", err)
		return true
	}
	if s.verbose {
		printUsage(s.stderr, res)
	}
	return false
}

func chatCompleter(doc prompt.Document) []prompt.Suggest {
	prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
	if !strings.HasPrefix(prefix, "/") {
		return nil
	}
	return prompt.FilterHasPrefix(chatSuggestions, doc.GetWordBeforeCursor(), true)
}

func printWelcome(out io.Writer) {
	_, _ = fmt.Fprintln(out, "=== toolcall chat ===")
	_, _ = fmt.Fprintln(out, "Type your message and press Enter. Type exit or quit to leave, /help for commands.")
}

func printHelp(out io.Writer) {
	_, _ = fmt.Fprintln(out, "Commands:")
	_, _ = fmt.Fprintln(out, "  /clear - Clear conversation history")
	_, _ = fmt.Fprintln(out, "  /help  - Show this help message")
	_, _ = fmt.Fprintln(out, "  exit   - End the session (also quit, /exit, Ctrl+D)")
}
