// Package prompt assembles the system message sent at the start of every
// conversation.
package prompt

import (
	"fmt"
	"sort"
	"strings"
)

const basePrompt = "You are a command-line assistant. Answer the user's request directly. " +
	"When a task needs local information or changes, call the available tools instead of guessing, " +
	"then summarize what you did."

var permissionNames = []struct {
	tag  rune
	name string
}{
	{'r', "read"},
	{'w', "write"},
	{'x', "execute"},
	{'n', "network"},
}

// BuildSystemPrompt constructs the system prompt from the tool permission map
// (tool name to tag) and an optional operator-provided extra instruction.
func BuildSystemPrompt(permissions map[string]string, extra string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	if md := ToolsMarkdown(permissions); md != "" {
		sb.WriteString("\n\n")
		sb.WriteString(md)
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		sb.WriteString("\n\n")
		sb.WriteString(extra)
	}
	return strings.TrimSpace(sb.String())
}

// ToolsMarkdown renders a markdown listing of tools and what they may touch.
func ToolsMarkdown(permissions map[string]string) string {
	if len(permissions) == 0 {
		return ""
	}
	names := make([]string, 0, len(permissions))
	for name := range permissions {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("## Available Tools\n")
	sb.WriteString("Each tool is tagged with the capabilities it uses (read, write, execute, network). ")
	sb.WriteString("Prefer read-only tools when they are enough.\n\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", sanitizeMarkdown(name), DescribePermission(permissions[name])))
	}
	return strings.TrimSpace(sb.String())
}

// DescribePermission spells out a permission tag, e.g. "rw" becomes
// "read, write". The empty tag is "none".
func DescribePermission(tag string) string {
	var parts []string
	for _, p := range permissionNames {
		if strings.ContainsRune(tag, p.tag) {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// sanitizeMarkdown keeps markdown fields single-line and trimmed.
func sanitizeMarkdown(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return strings.TrimSpace(value)
}
