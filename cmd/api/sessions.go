package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	sessionsType string
	sessionsJSON bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored analysis sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		list, tier, err := a.svc.ListSessions(cmd.Context(), sessionsType)
		if err != nil {
			return err
		}
		if sessionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNAME\tFILE\tROWS\tCOLS\tCREATED")
		for _, s := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n", s.ID, s.AnalysisType, s.Name, s.Filename, s.Rows, s.Columns, s.Timestamp)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d session(s), match: %s\n", len(list), tier)
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsType, "type", "", "analysis type filter (factor, pca, rfm, regression, timeseries)")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "print JSON")
}
