package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
)

type listStats struct {
	TotalItems  int `json:"total_items"`
	Files       int `json:"files"`
	Directories int `json:"directories"`
}

type listResult struct {
	Files     []string  `json:"files"`
	Directory string    `json:"directory"`
	Pattern   string    `json:"pattern,omitempty"`
	Recursive bool      `json:"recursive"`
	MaxDepth  *int      `json:"max_depth,omitempty"`
	Stats     listStats `json:"stats"`
}

func (f *fileTools) listFiles(ctx context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	if err := nonNegative(args, "max_depth"); err != nil {
		return nil, err
	}
	pattern := args.String("pattern")
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}

	dir, err := f.resolve(args.String("directory"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(dir)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("directory does not exist: %s", display)
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, fmt.Errorf("path is not a directory: %s", display)
	}

	recursive := args.Bool("recursive")
	if recursive {
		report.Start("Listing files at "+display+" recursively", "")
	} else {
		report.Start("Listing files at "+display, "")
	}

	result := listResult{
		Files:     []string{},
		Directory: args.String("directory"),
		Pattern:   pattern,
		Recursive: recursive,
	}
	maxDepth := -1
	if args.Has("max_depth") {
		maxDepth = args.Int("max_depth")
		result.MaxDepth = &maxDepth
	}
	if !recursive {
		maxDepth = 0
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			f.ctx.Debugf("[verbose] list_files: skipping %s: %v", path, walkErr)
			return nil
		}
		if path == dir {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			result.Stats.Directories++
		} else {
			result.Stats.Files++
		}
		if pattern == "" || matchName(pattern, d.Name()) {
			result.Files = append(result.Files, filepath.ToSlash(rel))
		}

		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() && maxDepth >= 0 && depth >= maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(result.Files)
	result.Stats.TotalItems = len(result.Files)
	report.Result(fmt.Sprintf(" ✅ Found %d items (%d files, %d dirs)", result.Stats.TotalItems, result.Stats.Files, result.Stats.Directories))
	return result, nil
}

func matchName(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
