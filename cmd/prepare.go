package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lotworks/dealdocs/internal/model"
)

var (
	prepareTenant   string
	prepareCategory string
	prepareDataPath string
	prepareGateOnly bool
	prepareJSON     bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Prepare deal data against the active template for a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		raw, err := os.ReadFile(prepareDataPath)
		if err != nil {
			return eris.Wrapf(err, "read %s", prepareDataPath)
		}
		var data model.DealData
		if err := json.Unmarshal(raw, &data); err != nil {
			return eris.Wrapf(err, "parse deal data %s", prepareDataPath)
		}

		if prepareGateOnly {
			res, err := e.Manager.ValidateDeal(cmd.Context(), prepareTenant, prepareCategory, &data)
			if err != nil {
				return err
			}
			if res.OK {
				fmt.Println("deal data is ready for document generation")
				return nil
			}
			fmt.Println("deal data is not ready:")
			for _, b := range res.Blocking {
				fmt.Printf("  %s\n", b)
			}
			return eris.New("validation failed")
		}

		inst, err := e.Manager.PrepareDocument(cmd.Context(), prepareTenant, prepareCategory, &data)
		if err != nil {
			return err
		}

		if prepareJSON {
			out, err := json.MarshalIndent(inst.Document, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal prepared document")
			}
			fmt.Println(string(out))
			return nil
		}

		doc := inst.Document
		fmt.Printf("prepared %d fields (template %s, instance %s)\n", len(doc.Fields), inst.TemplateID, inst.InstanceID)
		for _, f := range doc.Fields {
			if f.Skipped {
				fmt.Printf("  %-40s (skipped: %s)\n", f.PDFFieldName, f.SkipReason)
				continue
			}
			fmt.Printf("  %-40s %q\n", f.PDFFieldName, f.Value)
		}
		if len(doc.SignatureFields) > 0 {
			fmt.Printf("signature fields deferred: %d\n", len(doc.SignatureFields))
		}
		for _, ve := range doc.ValidationErrors {
			fmt.Printf("warning: %s: %s\n", ve.PDFFieldName, ve.Error)
		}
		for _, missing := range doc.MissingRequiredFields {
			fmt.Printf("missing required: %s\n", missing)
		}
		return nil
	},
}

func init() {
	prepareCmd.Flags().StringVar(&prepareTenant, "tenant", "", "tenant ID (required)")
	prepareCmd.Flags().StringVar(&prepareCategory, "category", "", "document category (required)")
	prepareCmd.Flags().StringVar(&prepareDataPath, "data", "", "path to deal data JSON (required)")
	prepareCmd.Flags().BoolVar(&prepareGateOnly, "gate", false, "validate only, do not record a document instance")
	prepareCmd.Flags().BoolVar(&prepareJSON, "json", false, "print the prepared document as JSON")
	_ = prepareCmd.MarkFlagRequired("tenant")
	_ = prepareCmd.MarkFlagRequired("category")
	_ = prepareCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(prepareCmd)
}
