package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sterope-gsa/sterope/internal/gsa"
)

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the sensitivity methods and the indices they report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tSAMPLER\tMIN GRID\tINDICES")
			for _, name := range gsa.Names() {
				m, err := gsa.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.Name, m.Sampler, m.MinSamples, strings.Join(m.Kinds(), " "))
			}
			return w.Flush()
		},
	}
}
