// Package files provides the default toolset: reading, listing, searching and
// editing files below the allowed directories.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minhyannv/toolcall/pkg/tools"
)

// Name is the toolset name accepted by --toolset.
const Name = "files"

type fileTools struct {
	ctx tools.Context
}

// Descriptors returns every tool in the files toolset.
func Descriptors(ctx tools.Context) []tools.Descriptor {
	if ctx.MaxReadBytes <= 0 {
		ctx.MaxReadBytes = tools.DefaultMaxReadBytes
	}
	f := &fileTools{ctx: ctx}
	return []tools.Descriptor{
		{
			Name:        "read_file",
			Description: "Read the contents of a file.",
			Permission:  "r",
			Params: []tools.Param{
				{Name: "filepath", Type: tools.TypeString, Required: true, Description: "Path of the file to read."},
				{Name: "max_lines", Type: tools.TypeInteger, Description: "Maximum number of lines to return."},
			},
			Func: f.readFile,
		},
		{
			Name:        "read_file_lines",
			Description: "Read a range of lines from a file (1-based, inclusive).",
			Permission:  "r",
			Params: []tools.Param{
				{Name: "filepath", Type: tools.TypeString, Required: true, Description: "Path of the file to read."},
				{Name: "from_line", Type: tools.TypeInteger, Description: "First line to return. Defaults to the start of the file."},
				{Name: "to_line", Type: tools.TypeInteger, Description: "Last line to return. Defaults to the end of the file."},
			},
			Func: f.readFileLines,
		},
		{
			Name:        "read_multiple_files",
			Description: "Read several files in one call.",
			Permission:  "r",
			Params: []tools.Param{
				{Name: "filepaths", Type: tools.TypeString, Required: true, Description: "Comma-separated list of file paths."},
				{Name: "max_lines", Type: tools.TypeInteger, Description: "Maximum number of lines to return per file."},
			},
			Func: f.readMultipleFiles,
		},
		{
			Name:        "list_files",
			Description: "List files and directories, optionally filtered by a shell pattern.",
			Permission:  "r",
			Params: []tools.Param{
				{Name: "directory", Type: tools.TypeString, Default: ".", Description: "Directory to list."},
				{Name: "pattern", Type: tools.TypeString, Description: "Shell pattern matched against entry names, e.g. *.go."},
				{Name: "recursive", Type: tools.TypeBoolean, Default: false, Description: "Descend into subdirectories."},
				{Name: "max_depth", Type: tools.TypeInteger, Description: "Maximum depth for recursive listing; 0 lists only the top level."},
			},
			Func: f.listFiles,
		},
		searchDescriptor("search_text", "Search files for lines containing an exact text.", "query", "Text to look for.", f.searchText),
		searchDescriptor("search_regex", "Search files for lines matching a regular expression.", "pattern", "Regular expression (RE2 syntax).", f.searchRegex),
		{
			Name:        "create_file",
			Description: "Create a file with the given content. Parent directories are created as needed.",
			Permission:  "w",
			Params: []tools.Param{
				{Name: "filepath", Type: tools.TypeString, Required: true, Description: "Path of the file to create."},
				{Name: "content", Type: tools.TypeString, Default: "", Description: "File content."},
				{Name: "overwrite", Type: tools.TypeBoolean, Default: false, Description: "Replace the file if it already exists."},
			},
			Func: f.createFile,
		},
		{
			Name:        "create_directory",
			Description: "Create a directory.",
			Permission:  "w",
			Params: []tools.Param{
				{Name: "directory", Type: tools.TypeString, Required: true, Description: "Directory to create."},
				{Name: "parents", Type: tools.TypeBoolean, Default: false, Description: "Create missing parent directories."},
				{Name: "exist_ok", Type: tools.TypeBoolean, Default: false, Description: "Succeed if the directory already exists."},
			},
			Func: f.createDirectory,
		},
		{
			Name:        "delete_file",
			Description: "Delete a file. With force, an empty directory may be deleted as well.",
			Permission:  "w",
			Params: []tools.Param{
				{Name: "filepath", Type: tools.TypeString, Required: true, Description: "Path of the file to delete."},
				{Name: "force", Type: tools.TypeBoolean, Default: false, Description: "Allow deleting an empty directory."},
			},
			Func: f.deleteFile,
		},
		{
			Name:        "remove_directory",
			Description: "Remove a directory.",
			Permission:  "w",
			Params: []tools.Param{
				{Name: "directory", Type: tools.TypeString, Required: true, Description: "Directory to remove."},
				{Name: "recursive", Type: tools.TypeBoolean, Default: false, Description: "Remove the directory and everything below it."},
				{Name: "force", Type: tools.TypeBoolean, Default: false, Description: "Ignore a missing directory and remove non-empty ones."},
			},
			Func: f.removeDirectory,
		},
		{
			Name:        "replace_text_in_file",
			Description: "Replace an exact text in a file. The text must occur once unless replace_all is set.",
			Permission:  "rw",
			Params: []tools.Param{
				{Name: "filepath", Type: tools.TypeString, Required: true, Description: "Path of the file to modify."},
				{Name: "old_str", Type: tools.TypeString, Required: true, Description: "Exact text to replace."},
				{Name: "new_str", Type: tools.TypeString, Required: true, Description: "Replacement text."},
				{Name: "replace_all", Type: tools.TypeBoolean, Default: false, Description: "Replace every occurrence."},
			},
			Func: f.replaceTextInFile,
		},
	}
}

func searchDescriptor(name, description, queryParam, queryDesc string, fn tools.Func) tools.Descriptor {
	return tools.Descriptor{
		Name:        name,
		Description: description,
		Permission:  "r",
		Params: []tools.Param{
			{Name: "paths", Type: tools.TypeString, Required: true, Description: "Space-separated files or directories to search."},
			{Name: queryParam, Type: tools.TypeString, Required: true, Description: queryDesc},
			{Name: "case_sensitive", Type: tools.TypeBoolean, Default: true, Description: "Match case exactly."},
			{Name: "max_depth", Type: tools.TypeInteger, Description: "Maximum directory depth to search; 1 searches only the top level."},
			{Name: "max_results", Type: tools.TypeInteger, Default: 100, Description: "Maximum number of matching lines; 0 means unlimited."},
			{Name: "count_only", Type: tools.TypeBoolean, Default: false, Description: "Return per-file match counts instead of lines."},
		},
		Func: fn,
	}
}

func (f *fileTools) resolve(path string) (string, error) {
	resolved, err := tools.ResolvePath(path, f.ctx.AllowedDirs)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	return resolved, nil
}

// isAllowedRoot reports whether path is one of the allowed directories itself.
func (f *fileTools) isAllowedRoot(path string) bool {
	for _, root := range tools.NormalizeAllowedDirs(f.ctx.AllowedDirs) {
		if root == path {
			return true
		}
	}
	return false
}

func statFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file does not exist: %s", tools.DisplayPath(path))
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is not a file: %s", tools.DisplayPath(path))
	}
	return info, nil
}

// readLimited reads at most MaxReadBytes from path.
func (f *fileTools) readLimited(path string) (string, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = file.Close() }()

	limit := f.ctx.MaxReadBytes
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(data)) > limit {
		f.ctx.Debugf("[verbose] read: truncated %s to %d bytes", path, limit)
		return string(data[:limit]), true, nil
	}
	return string(data), false, nil
}

// headLines returns the first n lines of content without trailing newlines.
func headLines(content string, n int) (string, int) {
	if n <= 0 || content == "" {
		return "", 0
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n"), len(lines)
}

// splitLinesKeepEnds splits content after each newline. A trailing newline
// does not start an extra empty line.
func splitLinesKeepEnds(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

func nonNegative(args tools.Args, name string) error {
	if args.Has(name) && args.Int(name) < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	if strings.HasSuffix(word, "ch") || strings.HasSuffix(word, "s") {
		return fmt.Sprintf("%d %ses", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
