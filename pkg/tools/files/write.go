package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
)

type createFileResult struct {
	Filepath     string `json:"filepath"`
	BytesWritten int    `json:"bytes_written"`
	LinesWritten int    `json:"lines_written"`
	Overwrite    bool   `json:"overwrite"`
}

func (f *fileTools) createFile(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	path, err := f.resolve(args.String("filepath"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(path)
	content := args.String("content")
	overwrite := args.Bool("overwrite")
	f.ctx.Debugf("[verbose] create_file: path=%s, bytes=%d, overwrite=%v", path, len(content), overwrite)

	report.Start("Creating file "+display, "")
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("path is a directory: %s", display)
		}
		if !overwrite {
			return nil, fmt.Errorf("file already exists: %s (use overwrite=true to replace)", display)
		}
	}

	parent := filepath.Dir(path)
	if _, err := os.Stat(parent); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, err
		}
		report.Progress(" (created directories)", "")
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}

	result := createFileResult{
		Filepath:     args.String("filepath"),
		BytesWritten: len(content),
		LinesWritten: countLines(content),
		Overwrite:    overwrite,
	}
	report.Result(fmt.Sprintf(" Wrote %d bytes (%s)", result.BytesWritten, plural(result.LinesWritten, "line")))
	return result, nil
}

type directoryResult struct {
	Directory string `json:"directory"`
	Message   string `json:"message"`
	Created   bool   `json:"created"`
}

func (f *fileTools) createDirectory(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	path, err := f.resolve(args.String("directory"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(path)
	report.Start("Creating directory "+display, "")

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("path is a file, not a directory: %s", display)
		}
		if !args.Bool("exist_ok") {
			return nil, fmt.Errorf("directory already exists: %s (use exist_ok=true to ignore)", display)
		}
		msg := "Directory already exists: " + display
		report.Result(" " + msg)
		return directoryResult{Directory: args.String("directory"), Message: msg}, nil
	}

	if args.Bool("parents") {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		report.Progress(" (with parents)", "")
	} else if err := os.Mkdir(path, 0o755); err != nil {
		return nil, err
	}

	msg := "Successfully created directory " + display
	report.Result(" " + msg)
	return directoryResult{Directory: args.String("directory"), Message: msg, Created: true}, nil
}

type deleteResult struct {
	Filepath string `json:"filepath"`
	Message  string `json:"message"`
	Force    bool   `json:"force"`
}

func (f *fileTools) deleteFile(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	path, err := f.resolve(args.String("filepath"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(path)
	force := args.Bool("force")
	report.Start("Deleting file "+display, "")

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file does not exist: %s", display)
	}
	if err != nil {
		return nil, err
	}

	var msg string
	if info.IsDir() {
		if !force {
			return nil, fmt.Errorf("path is not a file: %s (use force=true to delete empty directories)", display)
		}
		if f.isAllowedRoot(path) {
			return nil, fmt.Errorf("refusing to delete allowed directory %s", display)
		}
		report.Progress(" (directory)", "")
		if err := os.Remove(path); err != nil {
			if isNotEmpty(path) {
				return nil, fmt.Errorf("cannot delete non-empty directory: %s (use remove_directory)", display)
			}
			return nil, err
		}
		msg = "Successfully deleted directory " + display
	} else {
		report.Progress(fmt.Sprintf(" (%d bytes)", info.Size()), "")
		if err := os.Remove(path); err != nil {
			return nil, err
		}
		msg = "Successfully deleted file " + display
	}

	report.Result(" " + msg)
	return deleteResult{Filepath: args.String("filepath"), Message: msg, Force: force}, nil
}

type removeDirResult struct {
	Directory    string `json:"directory"`
	Message      string `json:"message"`
	Recursive    bool   `json:"recursive"`
	Force        bool   `json:"force"`
	ItemsRemoved int    `json:"items_removed"`
}

func (f *fileTools) removeDirectory(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	path, err := f.resolve(args.String("directory"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(path)
	recursive, force := args.Bool("recursive"), args.Bool("force")
	result := removeDirResult{Directory: args.String("directory"), Recursive: recursive, Force: force}

	if recursive {
		report.Start("Removing directory "+display+" recursively", "")
	} else {
		report.Start("Removing directory "+display, "")
	}
	if f.isAllowedRoot(path) {
		return nil, fmt.Errorf("refusing to remove allowed directory %s", display)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !force {
			return nil, fmt.Errorf("directory does not exist: %s", display)
		}
		result.Message = "Directory does not exist (ignored due to force=true): " + display
		report.Result(" " + result.Message)
		return result, nil
	case err != nil:
		return nil, err
	case !info.IsDir():
		if !force {
			return nil, fmt.Errorf("path is not a directory: %s", display)
		}
		result.Message = "Path is not a directory (ignored due to force=true): " + display
		report.Result(" " + result.Message)
		return result, nil
	}

	if !recursive {
		err := os.Remove(path)
		switch {
		case err == nil:
			result.Message = "Successfully removed empty directory " + display
			report.Result(" " + result.Message)
			return result, nil
		case !isNotEmpty(path):
			return nil, err
		case !force:
			return nil, fmt.Errorf("directory not empty: %s (use recursive=true to remove non-empty directories)", display)
		}
		report.Warning(" Directory not empty, removing recursively (force mode)", "")
	}

	result.ItemsRemoved = countEntries(path)
	report.Progress(fmt.Sprintf(" (%s)", plural(result.ItemsRemoved, "item")), "")
	if err := os.RemoveAll(path); err != nil {
		if !force {
			return nil, err
		}
		report.Warning(" Partial removal, some items may remain: "+err.Error(), "")
		result.Message = "Partially removed directory " + display + " (force mode)"
		report.Result(" " + result.Message)
		return result, nil
	}
	result.Message = "Successfully removed directory recursively " + display
	report.Result(" " + result.Message)
	return result, nil
}

type replaceResult struct {
	Filepath     string `json:"filepath"`
	Occurrences  int    `json:"occurrences"`
	Replacements int    `json:"replacements"`
}

func (f *fileTools) replaceTextInFile(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	path, err := f.resolve(args.String("filepath"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(path)
	oldStr, newStr := args.String("old_str"), args.String("new_str")
	if oldStr == "" {
		return nil, errors.New("old_str must not be empty")
	}

	report.Start("Replacing text in file "+display, "")
	info, err := statFile(path)
	if err != nil {
		return nil, err
	}
	report.Progress(fmt.Sprintf(" (%d bytes)", info.Size()), "")

	content, truncated, err := f.readLimited(path)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("file is larger than %d bytes and cannot be edited: %s", f.ctx.MaxReadBytes, display)
	}

	occurrences := strings.Count(content, oldStr)
	if occurrences == 0 {
		return nil, fmt.Errorf("search text %q not found in file", oldStr)
	}
	replaceAll := args.Bool("replace_all")
	if occurrences > 1 && !replaceAll {
		return nil, fmt.Errorf("multiple occurrences (%d) of %q found; the search text must be unique or replace_all must be set", occurrences, oldStr)
	}

	replacements := 1
	updated := strings.Replace(content, oldStr, newStr, 1)
	if replaceAll {
		replacements = occurrences
		updated = strings.ReplaceAll(content, oldStr, newStr)
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return nil, err
	}

	report.Result(fmt.Sprintf(" Text replaced successfully (%s)", plural(replacements, "replacement")))
	return replaceResult{
		Filepath:     args.String("filepath"),
		Occurrences:  occurrences,
		Replacements: replacements,
	}, nil
}

func isNotEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func countEntries(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(path string, _ fs.DirEntry, err error) error {
		if err == nil && path != dir {
			n++
		}
		return nil
	})
	return n
}
