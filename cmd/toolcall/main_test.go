package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minhyannv/toolcall/internal/mockendpoint"
	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliRun struct {
	code   int
	stdout string
	stderr string
}

func endpointEnv(srv *mockendpoint.Server) map[string]string {
	return map[string]string{
		"BASE_URL": srv.BaseURL(),
		"API_KEY":  "test-key",
		"MODEL":    "test-model",
	}
}

func runCLI(t *testing.T, ctx context.Context, vars map[string]string, stdin string, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(ctx, args, cliEnv{
		getenv: func(key string) string { return vars[key] },
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
	})
	return cliRun{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func toolCallArgs(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func lastToolResult(t *testing.T, req mockendpoint.Request) tools.ToolResult {
	t.Helper()
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i]["role"] == "tool" {
			var res tools.ToolResult
			require.NoError(t, json.Unmarshal([]byte(req.Messages[i]["content"].(string)), &res))
			return res
		}
	}
	t.Fatal("no tool message in request")
	return tools.ToolResult{}
}

func TestToolCallThenAnswer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\n"), 0o644))

	srv := mockendpoint.New(
		mockendpoint.Reply{ToolCalls: []mockendpoint.ToolCall{{
			Name:      "read_file",
			Arguments: toolCallArgs(t, map[string]any{"filepath": path}),
		}}},
		mockendpoint.Reply{Text: "The file has two lines."},
	)
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "--allowed-dir", dir, "how many lines in notes.txt?")
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, "The file has two lines.\n", run.stdout)
	assert.Equal(t, 1, strings.Count(run.stderr, "Reading file:"))
	require.Equal(t, 2, srv.Count())

	res := lastToolResult(t, srv.Requests()[1])
	assert.True(t, res.Success)
	assert.Equal(t, "read_file", res.Tool)
	assert.Contains(t, res.Data, "content")
}

func TestUnknownToolReturnsFailureMessage(t *testing.T) {
	srv := mockendpoint.New(
		mockendpoint.Reply{ToolCalls: []mockendpoint.ToolCall{{Name: "teleport", Arguments: `{}`}}},
		mockendpoint.Reply{Text: "I cannot do that."},
	)
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "--allowed-dir", t.TempDir(), "teleport me")
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, "I cannot do that.\n", run.stdout)

	res := lastToolResult(t, srv.Requests()[1])
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "teleport")
}

func TestMissingAPIKeySendsNothing(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "unused"})
	defer srv.Close()
	vars := endpointEnv(srv)
	delete(vars, "API_KEY")

	run := runCLI(t, context.Background(), vars, "", "hello")
	assert.Equal(t, 1, run.code)
	assert.Contains(t, run.stderr, "API_KEY")
	assert.Empty(t, run.stdout)
	assert.Zero(t, srv.Count())
}

func TestMissingModelFails(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "unused"})
	defer srv.Close()
	vars := endpointEnv(srv)
	delete(vars, "MODEL")

	run := runCLI(t, context.Background(), vars, "", "hello")
	assert.Equal(t, 1, run.code)
	assert.Contains(t, run.stderr, "MODEL")
	assert.Zero(t, srv.Count())
}

func TestEndlessToolCallsHitTurnLimit(t *testing.T) {
	dir := t.TempDir()
	srv := mockendpoint.New(mockendpoint.Reply{
		Text:      "still working",
		ToolCalls: []mockendpoint.ToolCall{{Name: "list_files", Arguments: `{}`}},
		Repeat:    true,
	})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "--allowed-dir", dir, "--max-turns", "3", "loop forever")
	assert.Equal(t, 1, run.code)
	assert.Empty(t, run.stdout)
	assert.Contains(t, run.stderr, "max turns reached")
	assert.Equal(t, 3, srv.Count())
}

func TestNon2xxFailsWithoutRetry(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{
		Status: http.StatusServiceUnavailable,
		Body:   `{"error":{"message":"overloaded","type":"server_error"}}`,
	})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "hello")
	assert.Equal(t, 1, run.code)
	assert.Empty(t, run.stdout)
	assert.Contains(t, run.stderr, "503")
	assert.Equal(t, 1, srv.Count())
}

func TestPromptFromStdin(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "piped"})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "  summarize this\n", "--allowed-dir", t.TempDir())
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, "piped\n", run.stdout)

	msgs := srv.Requests()[0].Messages
	assert.Equal(t, "summarize this", msgs[len(msgs)-1]["content"])
}

func TestEmptyPromptFails(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "unused"})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "   ", "--allowed-dir", t.TempDir())
	assert.Equal(t, 1, run.code)
	assert.Contains(t, run.stderr, "no prompt provided")
	assert.Zero(t, srv.Count())
}

func TestCancelledContextExits130(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "unused"})
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := runCLI(t, ctx, endpointEnv(srv), "", "--allowed-dir", t.TempDir(), "hello")
	assert.Equal(t, 130, run.code)
	assert.Contains(t, run.stderr, "Operation cancelled by user.")
	assert.Empty(t, run.stdout)
}

func TestVerboseBannerAndUsage(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "hi there"})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "-v", "--allowed-dir", t.TempDir(), "hello")
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, "hi there\n", run.stdout)
	assert.Contains(t, run.stderr, "Model: test-model | Backend: "+srv.BaseURL())
	assert.Contains(t, run.stderr, "Total tokens: 15 | Messages: #3")
}

func TestPermissionsFilterDeclaredTools(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "ok"})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "",
		"--allowed-dir", t.TempDir(), "--toolset", "files", "--toolset", "system", "--permissions", "rn", "hello")
	require.Equal(t, 0, run.code, run.stderr)

	var names []string
	for _, tool := range srv.Requests()[0].Tools {
		fn := tool["function"].(map[string]any)
		names = append(names, fn["name"].(string))
	}
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "get_url")
	assert.NotContains(t, names, "create_file")
	assert.NotContains(t, names, "run_command")
}

func TestChatKeepsHistoryAndClears(t *testing.T) {
	srv := mockendpoint.New(
		mockendpoint.Reply{Text: "one"},
		mockendpoint.Reply{Text: "two"},
		mockendpoint.Reply{Text: "three"},
	)
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "first\nsecond\n/clear\nthird\nexit\nignored\n",
		"--chat", "--allowed-dir", t.TempDir())
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, "one\ntwo\nthree\n", run.stdout)
	assert.Contains(t, run.stderr, "Conversation history cleared.")

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[1].Messages, 4)
	assert.Len(t, reqs[2].Messages, 2)
}

func TestChatReportsErrorsAndContinues(t *testing.T) {
	srv := mockendpoint.New(
		mockendpoint.Reply{Status: http.StatusBadGateway, Body: `{"error":{"message":"bad gateway"}}`},
		mockendpoint.Reply{Text: "recovered"},
	)
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "first\nsecond\n", "--chat", "--allowed-dir", t.TempDir())
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, "recovered\n", run.stdout)
	assert.Contains(t, run.stderr, "Error: ")
	assert.Len(t, srv.Requests()[1].Messages, 2)
}

func TestToolsCommandNeedsNoCredentials(t *testing.T) {
	run := runCLI(t, context.Background(), map[string]string{}, "",
		"tools", "--allowed-dir", t.TempDir(), "--toolset", "files", "--toolset", "system")
	require.Equal(t, 0, run.code, run.stderr)
	assert.Contains(t, run.stdout, "read_file")
	assert.Contains(t, run.stdout, "run_command")
	assert.Regexp(t, `get_url\s+rn\s+read, network`, run.stdout)
	assert.Regexp(t, `replace_text_in_file\s+rw\s+read, write`, run.stdout)
}

func TestToolsCommandHonoursPermissions(t *testing.T) {
	run := runCLI(t, context.Background(), nil, "", "tools", "--permissions", "r", "--allowed-dir", t.TempDir())
	require.Equal(t, 0, run.code, run.stderr)
	assert.Contains(t, run.stdout, "list_files")
	assert.NotContains(t, run.stdout, "create_file")
}

func TestInvalidFlagsFail(t *testing.T) {
	tests := map[string][]string{
		"unknown toolset":    {"tools", "--toolset", "browser"},
		"bad permission tag": {"tools", "--permissions", "rz"},
		"empty permissions":  {"tools", "--permissions", ""},
		"missing config":     {"tools", "--config", filepath.Join(t.TempDir(), "nope.yaml")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			run := runCLI(t, context.Background(), nil, "", args...)
			assert.Equal(t, 1, run.code)
			assert.Contains(t, run.stderr, "Error: ")
		})
	}
}

func TestConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "toolcall.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("toolsets: [system]\npermissions: x\nallowed_dir: "+dir+"\n"), 0o644))

	run := runCLI(t, context.Background(), nil, "", "tools", "--config", cfgPath)
	require.Equal(t, 0, run.code, run.stderr)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(run.stdout), "\n")+1)
	assert.Contains(t, run.stdout, "run_command")
}

func TestEmptyPermissionsRejectedFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "toolcall.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("permissions: \"\"\n"), 0o644))

	run := runCLI(t, context.Background(), nil, "", "tools", "--config", cfgPath, "--allowed-dir", dir)
	assert.Equal(t, 1, run.code)
	assert.Contains(t, run.stderr, "at least one class")
	assert.Empty(t, run.stdout)
}

func TestInterruptWhileReadingTerminalPromptExits130(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "unused"})
	defer srv.Close()
	vars := endpointEnv(srv)

	stdin, stdinWriter := io.Pipe()
	defer func() { _ = stdinWriter.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- execute(ctx, []string{"--allowed-dir", t.TempDir()}, cliEnv{
			getenv:   func(key string) string { return vars[key] },
			stdin:    stdin,
			stdout:   &stdout,
			stderr:   &stderr,
			stdinTTY: true,
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 130, code)
		assert.Contains(t, stderr.String(), "Enter your prompt")
		assert.Contains(t, stderr.String(), "Operation cancelled by user.")
		assert.Empty(t, stdout.String())
		assert.Zero(t, srv.Count())
	case <-time.After(2 * time.Second):
		t.Fatal("command kept waiting for terminal input after the interrupt")
	}
}

func TestMalformedResponseFails(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Body: "not json"})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "--allowed-dir", t.TempDir(), "hello")
	assert.Equal(t, 1, run.code)
	assert.Empty(t, run.stdout)
	assert.Contains(t, run.stderr, "completion request failed")
	assert.Equal(t, 1, srv.Count())
}

func TestUnreachableEndpointFails(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	baseURL := closed.URL + "/v1/"
	closed.Close()

	vars := map[string]string{"BASE_URL": baseURL, "API_KEY": "test-key", "MODEL": "test-model"}
	run := runCLI(t, context.Background(), vars, "", "--allowed-dir", t.TempDir(), "hello")
	assert.Equal(t, 1, run.code)
	assert.Empty(t, run.stdout)
	assert.Contains(t, run.stderr, "completion request failed")
}

func TestWaitIndicatorClearsItsLine(t *testing.T) {
	var buf bytes.Buffer
	finished := waitIndicator(progress.New(&buf))()
	assert.Equal(t, waitMessage, buf.String())
	finished()
	assert.Equal(t, waitMessage+clearLine, buf.String())
}

func TestWaitIndicatorOnlyOnTerminal(t *testing.T) {
	srv := mockendpoint.New(mockendpoint.Reply{Text: "ok"}, mockendpoint.Reply{Text: "ok"})
	defer srv.Close()

	run := runCLI(t, context.Background(), endpointEnv(srv), "", "--allowed-dir", t.TempDir(), "hello")
	require.Equal(t, 0, run.code, run.stderr)
	assert.NotContains(t, run.stderr, waitMessage)

	vars := endpointEnv(srv)
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--allowed-dir", t.TempDir(), "hello"}, cliEnv{
		getenv:    func(key string) string { return vars[key] },
		stdout:    &stdout,
		stderr:    &stderr,
		stderrTTY: true,
	})
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, waitMessage+clearLine, stderr.String())
	assert.Equal(t, "ok\n", stdout.String())
}
