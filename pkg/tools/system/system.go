// Package system provides tools that reach outside the file tree: fetching
// URLs and running commands.
package system

import (
	"net/http"

	"github.com/minhyannv/toolcall/pkg/tools"
)

// Name is the toolset name accepted by --toolset.
const Name = "system"

type systemTools struct {
	ctx    tools.Context
	client *http.Client
}

// Option customizes the system toolset.
type Option func(*systemTools)

// WithHTTPClient replaces the client used by get_url.
func WithHTTPClient(c *http.Client) Option {
	return func(s *systemTools) {
		if c != nil {
			s.client = c
		}
	}
}

// Descriptors returns every tool in the system toolset.
func Descriptors(ctx tools.Context, opts ...Option) []tools.Descriptor {
	s := &systemTools{ctx: ctx, client: &http.Client{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return []tools.Descriptor{
		{
			Name:        "get_url",
			Description: "Fetch a web page or text resource over HTTP(S). HTML is reduced to readable text.",
			Permission:  "rn",
			Params: []tools.Param{
				{Name: "url", Type: tools.TypeString, Required: true, Description: "URL to fetch; must start with http:// or https://."},
				{Name: "max_length", Type: tools.TypeInteger, Default: 5000, Description: "Maximum number of characters returned."},
				{Name: "max_lines", Type: tools.TypeInteger, Default: 200, Description: "Maximum number of lines returned."},
				{Name: "timeout", Type: tools.TypeInteger, Default: 10, Description: "Request timeout in seconds."},
				{Name: "follow_redirects", Type: tools.TypeBoolean, Default: true, Description: "Follow HTTP redirects."},
			},
			Func: s.getURL,
		},
		{
			Name:        "run_command",
			Description: "Run a program without shell expansion and capture its output.",
			Permission:  "x",
			Params: []tools.Param{
				{Name: "command", Type: tools.TypeString, Required: true, Description: "Command line to run; quotes group arguments."},
				{Name: "working_dir", Type: tools.TypeString, Description: "Working directory for the command."},
				{Name: "timeout_seconds", Type: tools.TypeInteger, Default: 60, Description: "Timeout in seconds before the command is terminated."},
			},
			Func: s.runCommand,
		},
	}
}
