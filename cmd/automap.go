package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lotworks/dealdocs/internal/report"
)

var automapReport string

var automapCmd = &cobra.Command{
	Use:   "automap <template-id>",
	Short: "Propose data-path mappings for a template's PDF fields",
	Long:  "Matches extracted PDF field names against the field catalog by normalized name. Manual mappings are left untouched; proposals below the score threshold leave the field unmapped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Manager.AutoMap(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("mapped %d, unmapped %d, manual %d\n", result.Mapped, result.Unmapped, result.Manual)
		for _, p := range result.Proposals {
			fmt.Printf("  %-40s -> %-28s %-10s score %d\n", p.PDFFieldName, p.DataPath, p.Rule, p.Score)
		}

		if automapReport != "" {
			t, err := e.Manager.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := report.WriteMappingReview(automapReport, t, result); err != nil {
				return err
			}
			fmt.Printf("review workbook written to %s\n", automapReport)
		}
		return nil
	},
}

func init() {
	automapCmd.Flags().StringVar(&automapReport, "report", "", "write an XLSX review workbook to this path")
	rootCmd.AddCommand(automapCmd)
}
