package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the transformation catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cat, err := root.load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPARAMETER\tDESCRIPTION")
			for _, t := range cat.Tools() {
				param := "-"
				if t.RequiresParameter {
					param = "required"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, param, t.Description)
			}
			return w.Flush()
		},
	}
}
