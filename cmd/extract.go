package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractPDF string

var extractCmd = &cobra.Command{
	Use:   "extract <template-id>",
	Short: "Extract fillable fields from a template PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		pdf, err := os.ReadFile(extractPDF)
		if err != nil {
			return eris.Wrapf(err, "read %s", extractPDF)
		}

		t, err := e.Manager.Extract(cmd.Context(), args[0], pdf)
		if err != nil {
			return err
		}

		fmt.Printf("extracted %d fields from %s (template %s now %s)\n",
			len(t.PDFFields), extractPDF, t.ID, t.Status)
		for _, f := range t.PDFFields {
			fmt.Printf("  %-40s %-12s page %d\n", f.Name, f.Type, f.Page)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractPDF, "pdf", "", "path to the template PDF (required)")
	_ = extractCmd.MarkFlagRequired("pdf")
	rootCmd.AddCommand(extractCmd)
}
