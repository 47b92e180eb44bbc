// Package toolset maps toolset names to their tools and builds the registry
// handed to the completion loop.
package toolset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/minhyannv/toolcall/pkg/tools"
	"github.com/minhyannv/toolcall/pkg/tools/files"
	"github.com/minhyannv/toolcall/pkg/tools/system"
)

type factory func(tools.Context) []tools.Descriptor

var known = map[string]factory{
	files.Name:  files.Descriptors,
	system.Name: func(ctx tools.Context) []tools.Descriptor { return system.Descriptors(ctx) },
}

// Known returns the names of every available toolset, sorted.
func Known() []string {
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build registers the named toolsets into a new registry. Tools whose
// permission tag falls outside opts.Allowed are skipped.
func Build(names []string, ctx tools.Context, opts tools.Options) (*tools.Registry, error) {
	if err := tools.ValidatePermission(opts.Allowed); err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	reg := tools.NewRegistry(opts)
	for _, name := range names {
		build, ok := known[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown toolset %q (available: %s)", name, strings.Join(Known(), ", "))
		}
		if err := reg.RegisterAll(build(ctx)...); err != nil {
			return nil, fmt.Errorf("toolset %s: %w", name, err)
		}
	}
	return reg, nil
}
