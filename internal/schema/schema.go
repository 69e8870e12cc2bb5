package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
	Usage   string `json:"usage,omitempty"`
}

// Build serializes the command tree (or the subtree at commandPath) into a
// machine-readable schema for agent callers.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	target := root
	if strings.TrimSpace(commandPath) != "" {
		found := find(root, strings.Fields(commandPath))
		if found == nil {
			return CommandSchema{}, fmt.Errorf("unknown command path %q", commandPath)
		}
		target = found
	}
	return serialize(target), nil
}

func find(cmd *cobra.Command, parts []string) *cobra.Command {
	if len(parts) == 0 {
		return cmd
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == parts[0] {
			return find(sub, parts[1:])
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	out := CommandSchema{
		Path:  strings.TrimSpace(cmd.CommandPath()),
		Use:   cmd.Use,
		Short: cmd.Short,
	}
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		out.Flags = append(out.Flags, FlagSchema{
			Name:    f.Name,
			Type:    f.Value.Type(),
			Default: f.DefValue,
			Usage:   f.Usage,
		})
	})
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" {
			continue
		}
		out.Subcommands = append(out.Subcommands, serialize(sub))
	}
	return out
}
