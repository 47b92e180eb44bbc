package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
)

const defaultCommandTimeout = 60 * time.Second

// commandResult captures command execution metadata and output.
type commandResult struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	WorkingDir string   `json:"working_dir,omitempty"`
	ExitCode   int      `json:"exit_code"`
	Stdout     string   `json:"stdout,omitempty"`
	Stderr     string   `json:"stderr,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	TimedOut   bool     `json:"timed_out,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (s *systemTools) runCommand(ctx context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	command := strings.TrimSpace(args.String("command"))
	s.ctx.Debugf("[verbose] run_command: command_bytes=%d, working_dir=%s, timeout=%ds",
		len(command), args.String("working_dir"), args.Int("timeout_seconds"))
	if command == "" {
		return nil, errors.New("command is required")
	}
	if blockedToken, blocked := tools.ContainsBlockedShellSyntax(command); blocked {
		return nil, fmt.Errorf("shell control syntax not allowed: %q", blockedToken)
	}

	argv, err := tools.ParseCommandLine(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("command is required")
	}
	if tools.IsShellExecutable(argv[0]) {
		return nil, fmt.Errorf("shell executables are not allowed: %s", argv[0])
	}
	if tools.IsDangerousExecutable(argv[0]) {
		s.ctx.Debugf("[verbose] run_command: dangerous command blocked: %s", argv[0])
		return nil, fmt.Errorf("dangerous command not allowed: %s", argv[0])
	}

	workingDir, err := tools.ResolveWorkingDir(args.String("working_dir"), s.ctx.AllowedDirs)
	if err != nil {
		return nil, fmt.Errorf("working directory validation failed: %w", err)
	}
	if workingDir == "" && len(s.ctx.AllowedDirs) > 0 {
		workingDir = tools.NormalizeAllowedDirs(s.ctx.AllowedDirs)[0]
	}

	where := "."
	if workingDir != "" {
		where = tools.DisplayPath(workingDir)
	}
	report.Start(fmt.Sprintf("Running command in %s: %s", where, command))

	timeout := time.Duration(args.Int("timeout_seconds")) * time.Second
	result := s.exec(ctx, argv[0], argv[1:], workingDir, timeout)
	if result.TimedOut {
		report.Warning(fmt.Sprintf(" Command timed out after %v", timeout))
	}
	report.Result(fmt.Sprintf("Command exited with code %d (%dms)", result.ExitCode, result.DurationMs))
	return result, nil
}

// exec runs command with a timeout and captures stdout and stderr.
func (s *systemTools) exec(ctx context.Context, command string, args []string, workingDir string, timeout time.Duration) commandResult {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	s.ctx.Debugf("[verbose] exec: command=%s, args=%v, working_dir=%s, timeout=%v", command, args, workingDir, timeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, command, args...)
	cmd.Env = sanitizedEnv()
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Milliseconds()

	result := commandResult{
		Command:    command,
		Args:       args,
		WorkingDir: workingDir,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration,
	}
	if err != nil {
		result.Error = err.Error()
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			result.ExitCode = exitErr.ExitCode()
		}
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.ExitCode = -1
		}
		s.ctx.Debugf("[verbose] exec: error occurred: %v (exit_code=%d)", err, result.ExitCode)
	}

	s.ctx.Debugf("[verbose] exec: completed, exit_code=%d, duration=%dms, stdout=%d bytes, stderr=%d bytes",
		result.ExitCode, duration, stdout.Len(), stderr.Len())
	return result
}

// sanitizedEnv keeps only low-risk environment variables for subprocesses.
func sanitizedEnv() []string {
	allowedPrefixes := []string{
		"PATH=",
		"HOME=",
		"USER=",
		"LOGNAME=",
		"SHELL=",
		"TMPDIR=",
		"TMP=",
		"TEMP=",
		"LANG=",
		"LC_",
		"TERM=",
		"PWD=",
	}

	env := make([]string, 0, len(allowedPrefixes))
	for _, kv := range os.Environ() {
		for _, prefix := range allowedPrefixes {
			if strings.HasPrefix(kv, prefix) {
				env = append(env, kv)
				break
			}
		}
	}
	return env
}
