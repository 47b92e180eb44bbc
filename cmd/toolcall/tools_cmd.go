package main

import (
	"fmt"
	"io"

	promptpkg "github.com/minhyannv/toolcall/pkg/prompt"
	"github.com/minhyannv/toolcall/pkg/tools"
	"github.com/spf13/cobra"
)

func newToolsCmd(f *cliFlags, env cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model with their permission tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f, env)
			if err != nil {
				return err
			}
			logger, closeLog := newLogger(cfg, env)
			defer closeLog()

			registry, err := buildRegistry(cfg, logger, env)
			if err != nil {
				return err
			}
			printTools(env.stdout, registry)
			return nil
		},
	}
}

func printTools(w io.Writer, registry *tools.Registry) {
	perms := registry.AllPermissions()
	names := registry.SortedNames()
	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}
	for _, name := range names {
		tag := perms[name]
		if tag == "" {
			tag = "-"
		}
		_, _ = fmt.Fprintf(w, "%-*s  %-4s  %s\n", width, name, tag, promptpkg.DescribePermission(perms[name]))
	}
}
