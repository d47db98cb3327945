package main

import (
	"fmt"

	"github.com/spf13/cobra"

	appanalysis "github.com/bryanwahyu/analytics-bridge/internal/application/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
	"github.com/bryanwahyu/analytics-bridge/internal/middleware"
)

var (
	exportSession  int64
	exportKind     string
	exportArtifact string
	exportFormat   string
	exportOut      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download an artifact of a stored session",
	Example: `  analytics-bridge export --session 42 --kind factor --artifact loadings
  analytics-bridge export --session 42 --format xlsx --out ./exports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind analysis.Kind
		if exportKind != "" {
			k, err := middleware.ValidateKind(exportKind)
			if err != nil {
				return err
			}
			kind = k
		}
		artifact, err := middleware.ValidateArtifact(exportArtifact)
		if err != nil {
			return err
		}
		format, err := middleware.ValidateFormat(exportFormat)
		if err != nil {
			return err
		}

		a, err := buildApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		saver := &artifacts.FileSaver{Dir: exportOut}
		d, err := a.svc.Save(cmd.Context(), appanalysis.DownloadCommand{
			SessionID: exportSession,
			Kind:      kind,
			Artifact:  artifact,
			Format:    format,
		}, saver)
		if err != nil {
			return err
		}
		source := "remote export"
		if d.Generated {
			source = "generated locally"
		}
		fmt.Printf("saved %s (%d bytes, %s)\n", saver.Written, len(d.Data), source)
		if d.ArchiveURL != "" {
			fmt.Printf("archived at %s\n", d.ArchiveURL)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportSession, "session", 0, "session id")
	exportCmd.Flags().StringVar(&exportKind, "kind", "", "analysis kind, enables the remote export endpoint")
	exportCmd.Flags().StringVar(&exportArtifact, "artifact", artifacts.KindResults, "artifact: results, loadings, eigenvalues, variance, scores")
	exportCmd.Flags().StringVar(&exportFormat, "format", artifacts.FormatCSV, "csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", ".", "output directory")
	_ = exportCmd.MarkFlagRequired("session")
}
