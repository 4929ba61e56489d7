package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lotworks/dealdocs/internal/model"
)

var (
	templateTenant   string
	templateCategory string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage document templates",
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new template version for a tenant and category",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		t, err := e.Manager.Create(cmd.Context(), templateTenant, templateCategory)
		if err != nil {
			return err
		}

		fmt.Printf("created template %s (%s/%s v%d, %s)\n", t.ID, t.TenantID, t.Category, t.Version, t.Status)
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List template versions for a tenant and category",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		templates, err := e.Manager.List(cmd.Context(), templateTenant, templateCategory)
		if err != nil {
			return err
		}

		if len(templates) == 0 {
			fmt.Println("no templates")
			return nil
		}

		fmt.Printf("%-38s %-8s %-12s %-8s %s\n", "ID", "VERSION", "STATUS", "FIELDS", "UPDATED")
		for _, t := range templates {
			fmt.Printf("%-38s %-8d %-12s %-8d %s\n",
				t.ID, t.Version, t.Status, len(t.PDFFields), t.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var templateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active version and change token for a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		state, err := e.Store.GetCategoryState(cmd.Context(), templateTenant, templateCategory)
		if err != nil {
			return err
		}

		if state.ActiveVersion == 0 {
			fmt.Printf("%s/%s: no active template (change token %d)\n",
				templateTenant, templateCategory, state.ChangeToken)
			return nil
		}
		fmt.Printf("%s/%s: active version %d (change token %d)\n",
			templateTenant, templateCategory, state.ActiveVersion, state.ChangeToken)
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template's fields and mappings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		t, err := e.Manager.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("template %s (%s/%s v%d, %s)\n", t.ID, t.TenantID, t.Category, t.Version, t.Status)
		if len(t.FieldMappings) == 0 {
			fmt.Println("no mappings (fields not extracted yet)")
			return nil
		}

		fmt.Printf("%-32s %-28s %-10s %-8s %s\n", "PDF FIELD", "DATA PATH", "TRANSFORM", "REQ", "SOURCE")
		for _, m := range t.FieldMappings {
			req := ""
			if m.Required {
				req = "yes"
			}
			source := ""
			switch {
			case m.IsManual():
				source = "manual"
			case m.AutoMapped:
				source = "auto"
			}
			fmt.Printf("%-32s %-28s %-10s %-8s %s\n", m.PDFFieldName, m.DataPath, m.Transform, req, source)
		}
		return nil
	},
}

var templateActivateCmd = &cobra.Command{
	Use:   "activate <template-id>",
	Short: "Make a template the active version for its category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Manager.Activate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("activated %s\n", args[0])
		return nil
	},
}

var templateDeactivateCmd = &cobra.Command{
	Use:   "deactivate <template-id>",
	Short: "Remove a template from active rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Manager.Deactivate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deactivated %s\n", args[0])
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <template-id>",
	Short: "Soft-delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Manager.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var (
	mapDataPath  string
	mapTransform string
	mapDefault   string
	mapRequired  bool
)

var templateMapCmd = &cobra.Command{
	Use:   "map <template-id> <pdf-field>",
	Short: "Set a manual mapping for one PDF field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		mapping := model.FieldMapping{
			PDFFieldName: args[1],
			DataPath:     mapDataPath,
			Transform:    model.TransformKind(mapTransform),
			DefaultValue: mapDefault,
			Required:     mapRequired,
		}
		if err := e.Manager.SetMapping(cmd.Context(), args[0], mapping); err != nil {
			return err
		}
		fmt.Printf("mapped %s -> %s\n", args[1], mapDataPath)
		return nil
	},
}

func requireTenantCategory(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().StringVar(&templateTenant, "tenant", "", "tenant ID (required)")
		c.Flags().StringVar(&templateCategory, "category", "", "document category (required)")
		_ = c.MarkFlagRequired("tenant")
		_ = c.MarkFlagRequired("category")
	}
}

func init() {
	requireTenantCategory(templateCreateCmd, templateListCmd, templateStatusCmd)

	templateMapCmd.Flags().StringVar(&mapDataPath, "path", "", "data path (empty clears the mapping)")
	templateMapCmd.Flags().StringVar(&mapTransform, "transform", "", "value transform (uppercase, lowercase, titlecase, currency, date)")
	templateMapCmd.Flags().StringVar(&mapDefault, "default", "", "default value when data is missing")
	templateMapCmd.Flags().BoolVar(&mapRequired, "required", false, "mark the field required")

	templateCmd.AddCommand(templateCreateCmd, templateListCmd, templateStatusCmd,
		templateShowCmd, templateActivateCmd, templateDeactivateCmd,
		templateDeleteCmd, templateMapCmd)
	rootCmd.AddCommand(templateCmd)
}
