package main

import (
	"fmt"
	"strings"

	"github.com/minhyannv/toolcall/pkg/toolset"
	"github.com/spf13/pflag"
)

var _ pflag.Value = (*toolsetFlag)(nil)

// toolsetFlag supports repeatable --toolset flags.
type toolsetFlag []string

func (f *toolsetFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *toolsetFlag) Set(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fmt.Errorf("empty toolset name")
	}
	if strings.Contains(value, ",") {
		return fmt.Errorf("comma-separated values are not supported for --toolset; repeat the flag instead")
	}
	for _, known := range toolset.Known() {
		if value == known {
			*f = append(*f, value)
			return nil
		}
	}
	return fmt.Errorf("unknown toolset %q (available: %s)", value, strings.Join(toolset.Known(), ", "))
}

func (f *toolsetFlag) Type() string {
	return "name"
}

func (f toolsetFlag) values() []string {
	out := make([]string, len(f))
	copy(out, f)
	return out
}
