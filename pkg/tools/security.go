// Path confinement and command safety checks shared by the built-in toolsets.
package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// NormalizeAllowedDirs returns a sorted, deduplicated list of absolute directories.
func NormalizeAllowedDirs(allowedDirs []string) []string {
	normalized := make([]string, 0, len(allowedDirs))
	seen := map[string]struct{}{}
	for _, dir := range allowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		normalized = append(normalized, abs)
	}
	slices.Sort(normalized)
	return normalized
}

// ResolvePath returns the absolute form of path after checking it stays inside
// one of allowedDirs. With no allowed dirs any path is accepted.
func ResolvePath(path string, allowedDirs []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if hasParentTraversal(cleanPath) {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	roots := NormalizeAllowedDirs(allowedDirs)
	if len(roots) == 0 {
		return absPath, nil
	}
	realPath, err := resolveSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	inside := false
	for _, root := range roots {
		if !within(root, absPath) {
			continue
		}
		inside = true
		realRoot, err := resolveSymlinks(root)
		if err == nil && within(realRoot, realPath) {
			return absPath, nil
		}
	}
	if inside {
		return "", fmt.Errorf("path escapes allowed directories through a symlink: %s", absPath)
	}
	return "", fmt.Errorf("path outside allowed directories: %s (allowed: %s)", absPath, strings.Join(roots, ", "))
}

// resolveSymlinks evaluates symlinks in the longest existing prefix of path
// and appends the components that do not exist yet. A dangling symlink is an
// error since writing through it would land wherever it points.
func resolveSymlinks(path string) (string, error) {
	rest := ""
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(real, rest), nil
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", fmt.Errorf("cannot resolve %s: %w", cur, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// ResolveWorkingDir is ResolvePath for an optional directory; "" means the
// process working directory.
func ResolveWorkingDir(dir string, allowedDirs []string) (string, error) {
	if dir == "" {
		return "", nil
	}
	return ResolvePath(dir, allowedDirs)
}

func within(root, absPath string) bool {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func hasParentTraversal(cleanPath string) bool {
	if cleanPath == ".." {
		return true
	}
	for _, part := range strings.Split(cleanPath, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	return false
}

// DisplayPath renders path for progress lines: "./rel" inside the working
// directory, unchanged elsewhere.
func DisplayPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if abs == wd {
		return abs
	}
	if !within(wd, abs) {
		return path
	}
	rel, err := filepath.Rel(wd, abs)
	if err != nil {
		return path
	}
	return "./" + filepath.ToSlash(rel)
}

var dangerousCommands = map[string]struct{}{
	"rm":         {},
	"rmdir":      {},
	"dd":         {},
	"mkfs":       {},
	"fdisk":      {},
	"shutdown":   {},
	"reboot":     {},
	"halt":       {},
	"poweroff":   {},
	"init":       {},
	"killall":    {},
	"kill":       {},
	"pkill":      {},
	"killall5":   {},
	"chmod":      {},
	"chown":      {},
	"chgrp":      {},
	"mount":      {},
	"umount":     {},
	"parted":     {},
	"sfdisk":     {},
	"wipefs":     {},
	"mkfs.ext4":  {},
	"mkfs.vfat":  {},
	"mkfs.ntfs":  {},
	"mkfs.xfs":   {},
	"mkfs.btrfs": {},
}

var shellExecutables = map[string]struct{}{
	"sh":         {},
	"bash":       {},
	"zsh":        {},
	"dash":       {},
	"fish":       {},
	"pwsh":       {},
	"powershell": {},
	"cmd":        {},
}

func baseCommand(executable string) string {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(executable)))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, ".exe")
}

// IsDangerousExecutable reports whether executable is on the deny list.
func IsDangerousExecutable(executable string) bool {
	_, blocked := dangerousCommands[baseCommand(executable)]
	return blocked
}

// IsShellExecutable reports whether executable is a shell interpreter.
func IsShellExecutable(executable string) bool {
	_, isShell := shellExecutables[baseCommand(executable)]
	return isShell
}

// ContainsBlockedShellSyntax returns the first shell control operator or
// expansion found in command.
func ContainsBlockedShellSyntax(command string) (string, bool) {
	blocked := []string{"&&", "||", ";", "|", ">", "<", "`", "$(", "\n", "\r"}
	for _, token := range blocked {
		if strings.Contains(command, token) {
			return token, true
		}
	}
	return "", false
}

// ParseCommandLine splits a command string into argv without invoking a shell.
// Single and double quotes group words; a backslash escapes the next rune
// outside single quotes.
func ParseCommandLine(input string) ([]string, error) {
	var (
		args     []string
		current  strings.Builder
		inSingle bool
		inDouble bool
		escaped  bool
		quoted   bool
	)

	flush := func() {
		if current.Len() == 0 && !quoted {
			return
		}
		args = append(args, current.String())
		current.Reset()
		quoted = false
	}

	for _, r := range input {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			quoted = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			quoted = true
		case (r == ' ' || r == '\t') && !inSingle && !inDouble:
			flush()
		default:
			current.WriteRune(r)
		}
	}

	if escaped {
		return nil, errors.New("unterminated escape in command")
	}
	if inSingle || inDouble {
		return nil, errors.New("unterminated quote in command")
	}
	flush()
	return args, nil
}
