package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the configured languages in index order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, store, _, err := setup()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, l := range store.Languages() {
			marker := ""
			if l.Code == store.DefaultLanguage() {
				marker = "default"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Code, l.Flag, l.Name, marker)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
