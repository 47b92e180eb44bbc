package files

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dir    string
	reg    *tools.Registry
	stderr *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	var stderr bytes.Buffer
	reg := tools.NewRegistry(tools.Options{Progress: progress.New(&stderr)})
	require.NoError(t, reg.RegisterAll(Descriptors(tools.Context{AllowedDirs: []string{dir}})...))
	return &harness{dir: dir, reg: reg, stderr: &stderr}
}

func (h *harness) path(parts ...string) string {
	return filepath.Join(append([]string{h.dir}, parts...)...)
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	p := h.path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

type outcome struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

func (h *harness) call(t *testing.T, name string, args map[string]any) outcome {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	payload, err := h.reg.Execute(context.Background(), openai.ChatCompletionMessageToolCall{
		ID:       "call_test",
		Function: openai.ChatCompletionMessageToolCallFunction{Name: name, Arguments: string(raw)},
	})
	require.NoError(t, err)

	var out outcome
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	return out
}

func TestDescriptorsRegisterWithExpectedPermissions(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, map[string]string{
		"read_file":            "r",
		"read_file_lines":      "r",
		"read_multiple_files":  "r",
		"list_files":           "r",
		"search_text":          "r",
		"search_regex":         "r",
		"create_file":          "w",
		"create_directory":     "w",
		"delete_file":          "w",
		"remove_directory":     "w",
		"replace_text_in_file": "rw",
	}, h.reg.AllPermissions())
}

func TestReadOnlyPolicySkipsWriters(t *testing.T) {
	reg := tools.NewRegistry(tools.Options{Allowed: "r"})
	require.NoError(t, reg.RegisterAll(Descriptors(tools.Context{})...))
	assert.ElementsMatch(t, []string{
		"read_file", "read_file_lines", "read_multiple_files", "list_files", "search_text", "search_regex",
	}, reg.Names())
}

func TestReadFile(t *testing.T) {
	h := newHarness(t)
	p := h.write(t, "notes.txt", "one\ntwo\nthree\n")

	out := h.call(t, "read_file", map[string]any{"filepath": p})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "one\ntwo\nthree\n", out.Data["content"])
	assert.Equal(t, float64(4), out.Data["lines_read"])
	assert.Contains(t, h.stderr.String(), "(14 bytes)")

	out = h.call(t, "read_file", map[string]any{"filepath": p, "max_lines": 2})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "one\ntwo", out.Data["content"])
	assert.Equal(t, float64(2), out.Data["lines_read"])
}

func TestReadFileTruncatesAtLimit(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(p, []byte("0123456789"), 0o644))

	reg := tools.NewRegistry(tools.Options{})
	require.NoError(t, reg.RegisterAll(Descriptors(tools.Context{AllowedDirs: []string{dir}, MaxReadBytes: 4})...))
	h := &harness{dir: dir, reg: reg}

	out := h.call(t, "read_file", map[string]any{"filepath": p})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "0123", out.Data["content"])
	assert.Equal(t, true, out.Data["truncated"])
}

func TestReadFileErrors(t *testing.T) {
	h := newHarness(t)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing", args: map[string]any{"filepath": h.path("nope.txt")}, want: "file does not exist"},
		{name: "directory", args: map[string]any{"filepath": h.dir}, want: "path is not a file"},
		{name: "outside allowed dir", args: map[string]any{"filepath": outside}, want: "path outside allowed directories"},
		{name: "traversal", args: map[string]any{"filepath": "../secret.txt"}, want: "path traversal not allowed"},
		{name: "negative max_lines", args: map[string]any{"filepath": h.dir, "max_lines": -1}, want: "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.call(t, "read_file", tt.args)
			assert.False(t, out.Success)
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestReadFileLines(t *testing.T) {
	h := newHarness(t)
	p := h.write(t, "lines.txt", "a\nb\nc\nd\n")

	out := h.call(t, "read_file_lines", map[string]any{"filepath": p, "from_line": 2, "to_line": 3})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "b\nc\n", out.Data["content"])
	assert.Equal(t, float64(2), out.Data["from_line"])
	assert.Equal(t, float64(3), out.Data["to_line"])
	assert.Equal(t, float64(4), out.Data["total_lines"])

	out = h.call(t, "read_file_lines", map[string]any{"filepath": p, "from_line": 3})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "c\nd\n", out.Data["content"])

	out = h.call(t, "read_file_lines", map[string]any{"filepath": p, "to_line": 1})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "a\n", out.Data["content"])
}

func TestReadFileLinesRangeErrors(t *testing.T) {
	h := newHarness(t)
	p := h.write(t, "lines.txt", "a\nb\n")

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "from out of range", args: map[string]any{"filepath": p, "from_line": 3}, want: "from_line (3) is out of range"},
		{name: "to out of range", args: map[string]any{"filepath": p, "to_line": 0}, want: "to_line (0) is out of range"},
		{name: "inverted", args: map[string]any{"filepath": p, "from_line": 2, "to_line": 1}, want: "cannot be greater"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.call(t, "read_file_lines", tt.args)
			assert.False(t, out.Success)
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestReadMultipleFiles(t *testing.T) {
	h := newHarness(t)
	a := h.write(t, "a.txt", "alpha\n")
	b := h.write(t, "b.txt", "beta\n")

	out := h.call(t, "read_multiple_files", map[string]any{"filepaths": a + ", " + b + "," + h.path("missing.txt")})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(3), out.Data["total_files"])
	assert.Equal(t, float64(2), out.Data["successful_files"])

	files := out.Data["files"].([]any)
	require.Len(t, files, 3)
	assert.Equal(t, "alpha\n", files[0].(map[string]any)["content"])
	assert.Contains(t, files[2].(map[string]any)["error"], "file does not exist")
	assert.Contains(t, h.stderr.String(), "Read 2/3 files successfully")
}

func TestReadMultipleFilesAllFail(t *testing.T) {
	h := newHarness(t)
	out := h.call(t, "read_multiple_files", map[string]any{"filepaths": h.path("x.txt")})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "failed to read any of the 1 files")

	out = h.call(t, "read_multiple_files", map[string]any{"filepaths": " , "})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "no file paths provided")
}

func TestListFiles(t *testing.T) {
	h := newHarness(t)
	h.write(t, "main.go", "package main\n")
	h.write(t, "README.md", "# hi\n")
	h.write(t, "pkg/util.go", "package pkg\n")
	h.write(t, "pkg/deep/more.go", "package deep\n")

	out := h.call(t, "list_files", map[string]any{"directory": h.dir})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, []any{"README.md", "main.go", "pkg"}, out.Data["files"])

	out = h.call(t, "list_files", map[string]any{"directory": h.dir, "recursive": true, "pattern": "*.go"})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, []any{"main.go", "pkg/deep/more.go", "pkg/util.go"}, out.Data["files"])

	out = h.call(t, "list_files", map[string]any{"directory": h.dir, "recursive": true, "max_depth": 1})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, []any{"README.md", "main.go", "pkg", "pkg/deep", "pkg/util.go"}, out.Data["files"])
	stats := out.Data["stats"].(map[string]any)
	assert.Equal(t, float64(5), stats["total_items"])
}

func TestListFilesErrors(t *testing.T) {
	h := newHarness(t)
	file := h.write(t, "f.txt", "")

	out := h.call(t, "list_files", map[string]any{"directory": file})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "path is not a directory")

	out = h.call(t, "list_files", map[string]any{"directory": h.path("nope")})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "directory does not exist")

	out = h.call(t, "list_files", map[string]any{"directory": h.dir, "pattern": "[a-"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "invalid pattern")
}

func TestSearchText(t *testing.T) {
	h := newHarness(t)
	a := h.write(t, "a.txt", "Hello world\nbye\nhello again\n")
	h.write(t, "sub/b.txt", "HELLO there\n")

	out := h.call(t, "search_text", map[string]any{"paths": a, "query": "hello"})
	require.True(t, out.Success, out.Error)
	matches := out.Data["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0], ":3: hello again")

	out = h.call(t, "search_text", map[string]any{"paths": h.dir, "query": "hello", "case_sensitive": false})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(3), out.Data["total_matches"])
	assert.Equal(t, float64(2), out.Data["files_searched"])

	out = h.call(t, "search_text", map[string]any{"paths": h.dir, "query": "hello", "case_sensitive": false, "max_depth": 1})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(2), out.Data["total_matches"])

	out = h.call(t, "search_text", map[string]any{"paths": h.dir, "query": "hello", "case_sensitive": false, "max_results": 1})
	require.True(t, out.Success, out.Error)
	assert.Len(t, out.Data["matches"], 1)
	assert.Equal(t, true, out.Data["truncated"])
}

func TestSearchCountOnlyAndWarnings(t *testing.T) {
	h := newHarness(t)
	a := h.write(t, "a.txt", "x\nx\ny\n")

	out := h.call(t, "search_text", map[string]any{
		"paths":      a + " " + h.path("missing.txt"),
		"query":      "x",
		"count_only": true,
	})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(2), out.Data["total_matches"])
	counts := out.Data["counts"].(map[string]any)
	assert.Len(t, counts, 1)
	assert.Contains(t, h.stderr.String(), "⚠️ Path does not exist")

	out = h.call(t, "search_text", map[string]any{"paths": h.path("missing.txt"), "query": "x"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "no valid paths to search")
}

func TestSearchRegex(t *testing.T) {
	h := newHarness(t)
	a := h.write(t, "code.go", "func Alpha() {}\nvar x = 1\nfunc beta() {}\n")

	out := h.call(t, "search_regex", map[string]any{"paths": a, "pattern": `^func [A-Z]`})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(1), out.Data["total_matches"])

	out = h.call(t, "search_regex", map[string]any{"paths": a, "pattern": `^FUNC`, "case_sensitive": false})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(2), out.Data["total_matches"])

	out = h.call(t, "search_regex", map[string]any{"paths": a, "pattern": `(`})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "invalid regular expression")
}

func TestCreateFile(t *testing.T) {
	h := newHarness(t)
	p := h.path("nested", "dir", "new.txt")

	out := h.call(t, "create_file", map[string]any{"filepath": p, "content": "a\nb"})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(3), out.Data["bytes_written"])
	assert.Equal(t, float64(2), out.Data["lines_written"])
	assert.Contains(t, h.stderr.String(), "(created directories)")

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", string(data))

	out = h.call(t, "create_file", map[string]any{"filepath": p, "content": "c"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "file already exists")

	out = h.call(t, "create_file", map[string]any{"filepath": p, "content": "c", "overwrite": true})
	require.True(t, out.Success, out.Error)
	data, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
}

func TestCreateDirectory(t *testing.T) {
	h := newHarness(t)

	out := h.call(t, "create_directory", map[string]any{"directory": h.path("a", "b")})
	assert.False(t, out.Success, "missing parent without parents=true")

	out = h.call(t, "create_directory", map[string]any{"directory": h.path("a", "b"), "parents": true})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, true, out.Data["created"])
	assert.DirExists(t, h.path("a", "b"))

	out = h.call(t, "create_directory", map[string]any{"directory": h.path("a")})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "directory already exists")

	out = h.call(t, "create_directory", map[string]any{"directory": h.path("a"), "exist_ok": true})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, false, out.Data["created"])
}

func TestDeleteFile(t *testing.T) {
	h := newHarness(t)
	p := h.write(t, "gone.txt", "bye")
	require.NoError(t, os.Mkdir(h.path("empty"), 0o755))

	out := h.call(t, "delete_file", map[string]any{"filepath": p})
	require.True(t, out.Success, out.Error)
	assert.NoFileExists(t, p)

	out = h.call(t, "delete_file", map[string]any{"filepath": p})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "file does not exist")

	out = h.call(t, "delete_file", map[string]any{"filepath": h.path("empty")})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "use force=true")

	out = h.call(t, "delete_file", map[string]any{"filepath": h.path("empty"), "force": true})
	require.True(t, out.Success, out.Error)
	assert.NoDirExists(t, h.path("empty"))
}

func TestRemoveDirectory(t *testing.T) {
	h := newHarness(t)
	h.write(t, "full/a.txt", "a")
	h.write(t, "full/sub/b.txt", "b")
	require.NoError(t, os.Mkdir(h.path("empty"), 0o755))

	out := h.call(t, "remove_directory", map[string]any{"directory": h.path("empty")})
	require.True(t, out.Success, out.Error)
	assert.NoDirExists(t, h.path("empty"))

	out = h.call(t, "remove_directory", map[string]any{"directory": h.path("full")})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "directory not empty")

	out = h.call(t, "remove_directory", map[string]any{"directory": h.path("full"), "recursive": true})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(3), out.Data["items_removed"])
	assert.NoDirExists(t, h.path("full"))

	out = h.call(t, "remove_directory", map[string]any{"directory": h.path("full"), "force": true})
	require.True(t, out.Success, out.Error)

	out = h.call(t, "remove_directory", map[string]any{"directory": h.dir, "recursive": true})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "refusing to remove allowed directory")
	assert.DirExists(t, h.dir)
}

func TestReplaceTextInFile(t *testing.T) {
	h := newHarness(t)
	p := h.write(t, "cfg.txt", "port=80\nhost=a\nport=80\n")

	out := h.call(t, "replace_text_in_file", map[string]any{"filepath": p, "old_str": "port=80", "new_str": "port=8080"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "multiple occurrences (2)")

	out = h.call(t, "replace_text_in_file", map[string]any{"filepath": p, "old_str": "host=a", "new_str": "host=b"})
	require.True(t, out.Success, out.Error)

	out = h.call(t, "replace_text_in_file", map[string]any{"filepath": p, "old_str": "port=80\n", "new_str": "port=8080\n", "replace_all": true})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, float64(2), out.Data["replacements"])

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "port=8080\nhost=b\nport=8080\n", string(data))

	out = h.call(t, "replace_text_in_file", map[string]any{"filepath": p, "old_str": "absent", "new_str": "x"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "not found in file")
}
