package files

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
)

const maxSearchLineBytes = 1024 * 1024

type searchResult struct {
	Matches       []string       `json:"matches,omitempty"`
	Counts        map[string]int `json:"counts,omitempty"`
	TotalMatches  int            `json:"total_matches"`
	FilesSearched int            `json:"files_searched"`
	Truncated     bool           `json:"truncated,omitempty"`
}

type searchOptions struct {
	match      func(line string) bool
	maxDepth   int // <0 means unlimited
	maxResults int // 0 means unlimited
	countOnly  bool
}

func (f *fileTools) searchText(ctx context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	query := args.String("query")
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	match := func(line string) bool { return strings.Contains(line, query) }
	if !args.Bool("case_sensitive") {
		lowered := strings.ToLower(query)
		match = func(line string) bool { return strings.Contains(strings.ToLower(line), lowered) }
	}
	return f.search(ctx, args, report, fmt.Sprintf("exact text '%s'", query), match)
}

func (f *fileTools) searchRegex(ctx context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	pattern := args.String("pattern")
	if pattern == "" {
		return nil, errors.New("pattern must not be empty")
	}
	expr := pattern
	if !args.Bool("case_sensitive") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}
	return f.search(ctx, args, report, fmt.Sprintf("regex pattern '%s'", pattern), re.MatchString)
}

func (f *fileTools) search(ctx context.Context, args tools.Args, report *progress.Reporter, what string, match func(string) bool) (any, error) {
	if err := nonNegative(args, "max_depth"); err != nil {
		return nil, err
	}
	if err := nonNegative(args, "max_results"); err != nil {
		return nil, err
	}

	fields := strings.Fields(args.String("paths"))
	if len(fields) == 0 {
		return nil, errors.New("no paths provided")
	}
	var roots []string
	for _, p := range fields {
		resolved, err := f.resolve(p)
		if err != nil {
			report.Warning(" " + err.Error())
			continue
		}
		if _, err := os.Stat(resolved); err != nil {
			report.Warning(" Path does not exist: " + tools.DisplayPath(resolved))
			continue
		}
		roots = append(roots, resolved)
	}
	if len(roots) == 0 {
		return nil, errors.New("no valid paths to search")
	}

	shown := make([]string, 0, 3)
	for _, r := range roots[:min(3, len(roots))] {
		shown = append(shown, tools.DisplayPath(r))
	}
	where := strings.Join(shown, ", ")
	if len(roots) > 3 {
		where += fmt.Sprintf(" (+%d more)", len(roots)-3)
	}
	report.Start(fmt.Sprintf("Searching for %s in %s", what, where))

	opts := searchOptions{
		match:      match,
		maxDepth:   -1,
		maxResults: args.Int("max_results"),
		countOnly:  args.Bool("count_only"),
	}
	if args.Has("max_depth") {
		opts.maxDepth = args.Int("max_depth")
	}

	result := &searchResult{}
	if opts.countOnly {
		result.Counts = map[string]int{}
	} else {
		result.Matches = []string{}
	}
	for _, root := range roots {
		if err := f.searchRoot(ctx, root, opts, result); err != nil {
			if errors.Is(err, errSearchLimit) {
				result.Truncated = true
				break
			}
			return nil, err
		}
	}

	report.Result(fmt.Sprintf("Found %s in %s", plural(result.TotalMatches, "match"), plural(result.FilesSearched, "file")))
	return result, nil
}

var errSearchLimit = errors.New("search result limit reached")

func (f *fileTools) searchRoot(ctx context.Context, root string, opts searchOptions, result *searchResult) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			f.ctx.Debugf("[verbose] search: skipping %s: %v", path, walkErr)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				if opts.maxDepth == 0 {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			// Files directly in root are at depth 0; this directory's files
			// sit one level deeper than the directory itself.
			if opts.maxDepth >= 0 && strings.Count(rel, string(filepath.Separator))+1 >= opts.maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return f.searchFile(path, opts, result)
	})
}

func (f *fileTools) searchFile(path string, opts searchOptions, result *searchResult) error {
	file, err := os.Open(path)
	if err != nil {
		f.ctx.Debugf("[verbose] search: cannot open %s: %v", path, err)
		return nil
	}
	defer func() { _ = file.Close() }()
	result.FilesSearched++

	display := tools.DisplayPath(path)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSearchLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.IndexByte(line, 0) >= 0 {
			// binary content
			return nil
		}
		if !opts.match(line) {
			continue
		}
		result.TotalMatches++
		if opts.countOnly {
			result.Counts[display]++
			continue
		}
		result.Matches = append(result.Matches, fmt.Sprintf("%s:%d: %s", display, lineNo, line))
		if opts.maxResults > 0 && len(result.Matches) >= opts.maxResults {
			return errSearchLimit
		}
	}
	if err := scanner.Err(); err != nil {
		f.ctx.Debugf("[verbose] search: stopped reading %s: %v", path, err)
	}
	return nil
}
