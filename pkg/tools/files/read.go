package files

import (
	"context"
	"fmt"
	"strings"

	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
)

type readFileResult struct {
	Filepath  string `json:"filepath"`
	Content   string `json:"content"`
	LinesRead int    `json:"lines_read"`
	MaxLines  *int   `json:"max_lines,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (f *fileTools) readFile(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	if err := nonNegative(args, "max_lines"); err != nil {
		return nil, err
	}
	path, err := f.resolve(args.String("filepath"))
	if err != nil {
		return nil, err
	}
	f.ctx.Debugf("[verbose] read_file: path=%s", path)

	report.Start("Reading file: "+tools.DisplayPath(path), "")
	info, err := statFile(path)
	if err != nil {
		return nil, err
	}
	report.Progress(fmt.Sprintf(" (%d bytes)", info.Size()), "")

	content, truncated, err := f.readLimited(path)
	if err != nil {
		return nil, err
	}

	result := readFileResult{
		Filepath:  args.String("filepath"),
		Truncated: truncated,
	}
	if args.Has("max_lines") {
		maxLines := args.Int("max_lines")
		result.MaxLines = &maxLines
		result.Content, result.LinesRead = headLines(content, maxLines)
	} else {
		result.Content, result.LinesRead = content, countLines(content)
	}
	report.Result(fmt.Sprintf(" Read %s successfully", plural(result.LinesRead, "line")))
	return result, nil
}

type readLinesResult struct {
	Filepath   string `json:"filepath"`
	Content    string `json:"content"`
	FromLine   int    `json:"from_line"`
	ToLine     int    `json:"to_line"`
	TotalLines int    `json:"total_lines"`
	LinesRead  int    `json:"lines_read"`
}

func (f *fileTools) readFileLines(_ context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	path, err := f.resolve(args.String("filepath"))
	if err != nil {
		return nil, err
	}
	display := tools.DisplayPath(path)

	hasFrom, hasTo := args.Has("from_line"), args.Has("to_line")
	from, to := args.Int("from_line"), args.Int("to_line")
	rangeInfo := ""
	switch {
	case hasFrom && hasTo:
		rangeInfo = fmt.Sprintf(" (lines %d-%d)", from, to)
	case hasFrom:
		rangeInfo = fmt.Sprintf(" (from line %d)", from)
	case hasTo:
		rangeInfo = fmt.Sprintf(" (up to line %d)", to)
	}
	report.Start("Reading file "+display+rangeInfo, "")

	info, err := statFile(path)
	if err != nil {
		return nil, err
	}
	report.Progress(fmt.Sprintf(" (%d bytes)", info.Size()), "")

	content, _, err := f.readLimited(path)
	if err != nil {
		return nil, err
	}
	lines := splitLinesKeepEnds(content)
	total := len(lines)

	if hasFrom && (from < 1 || from > total) {
		return nil, fmt.Errorf("from_line (%d) is out of range; file has %d lines", from, total)
	}
	if hasTo && (to < 1 || to > total) {
		return nil, fmt.Errorf("to_line (%d) is out of range; file has %d lines", to, total)
	}
	if hasFrom && hasTo && from > to {
		return nil, fmt.Errorf("from_line (%d) cannot be greater than to_line (%d)", from, to)
	}
	if !hasFrom {
		from = 1
	}
	if !hasTo {
		to = total
	}

	var selected []string
	if total > 0 {
		selected = lines[from-1 : to]
	}
	result := readLinesResult{
		Filepath:   args.String("filepath"),
		Content:    strings.Join(selected, ""),
		FromLine:   from,
		ToLine:     from + len(selected) - 1,
		TotalLines: total,
		LinesRead:  len(selected),
	}
	if len(selected) == 0 {
		result.FromLine, result.ToLine = 0, 0
	}
	report.Result(fmt.Sprintf(" Read %s (lines %d-%d)", plural(result.LinesRead, "line"), result.FromLine, result.ToLine))
	return result, nil
}

type fileEntry struct {
	Filepath  string `json:"filepath"`
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	LinesRead int    `json:"lines_read,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

type readMultipleResult struct {
	Files           []fileEntry `json:"files"`
	TotalFiles      int         `json:"total_files"`
	SuccessfulFiles int         `json:"successful_files"`
	MaxLines        *int        `json:"max_lines,omitempty"`
}

func (f *fileTools) readMultipleFiles(ctx context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	if err := nonNegative(args, "max_lines"); err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range strings.Split(args.String("filepaths"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no file paths provided")
	}

	result := readMultipleResult{TotalFiles: len(paths)}
	if args.Has("max_lines") {
		maxLines := args.Int("max_lines")
		result.MaxLines = &maxLines
	}

	report.Start(fmt.Sprintf("📖 Reading %s", plural(len(paths), "file")), "")
	var firstErr error
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := f.readOne(p, result.MaxLines, func(display string) {
			if len(paths) > 1 {
				report.Progress(fmt.Sprintf("\n  [%d/%d] %s", i+1, len(paths), display), "")
			} else {
				report.Progress(" "+display, "")
			}
		}, report)
		if entry.Success {
			result.SuccessfulFiles++
		} else if firstErr == nil {
			firstErr = fmt.Errorf("%s: %s", p, entry.Error)
		}
		result.Files = append(result.Files, entry)
	}

	switch {
	case result.SuccessfulFiles == 0:
		report.Progress("", "\n")
		return nil, fmt.Errorf("failed to read any of the %d files (first error: %v)", len(paths), firstErr)
	case result.SuccessfulFiles == len(paths):
		report.Result(fmt.Sprintf(" Successfully read all %s", plural(len(paths), "file")))
	default:
		report.Result(fmt.Sprintf(" Read %d/%d files successfully", result.SuccessfulFiles, len(paths)))
	}
	return result, nil
}

func (f *fileTools) readOne(p string, maxLines *int, announce func(string), report *progress.Reporter) fileEntry {
	entry := fileEntry{Filepath: p}
	path, err := f.resolve(p)
	if err != nil {
		announce(p)
		entry.Error = err.Error()
		return entry
	}
	announce(tools.DisplayPath(path))

	info, err := statFile(path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	if info.Size() > 0 {
		report.Progress(fmt.Sprintf(" (%d bytes)", info.Size()), "")
	}
	content, truncated, err := f.readLimited(path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	entry.Success = true
	entry.Truncated = truncated
	if maxLines != nil {
		entry.Content, entry.LinesRead = headLines(content, *maxLines)
	} else {
		entry.Content, entry.LinesRead = content, countLines(content)
	}
	return entry
}
