package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pixora/internal/effect"
)

func newComposeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compose BASE_URL TOOL[=PARAM]...",
		Short: "Print the composite descriptor for a base image and tools",
		Example: `  pixora compose https://cdn.example/a.jpg bgremove dropshadow
  pixora compose https://cdn.example/a.jpg "changebg=sunny beach"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cat, err := root.load()
			if err != nil {
				return err
			}
			applied := parseApplied(args[1:])
			descriptor, err := effect.Compose(cat, args[0], applied.Items())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), descriptor)
			return nil
		},
	}
}

// parseApplied reads "tool" or "tool=param" arguments in order. A repeated
// tool keeps its first position and parameter.
func parseApplied(args []string) *effect.Set {
	set := effect.NewSet()
	for _, arg := range args {
		id, param, _ := strings.Cut(arg, "=")
		set.Add(strings.TrimSpace(id), param)
	}
	return set
}
