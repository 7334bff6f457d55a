package commands

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) modulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules that accept imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modules, err := a.api.Modules(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list modules: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), modules)
		},
	}
}

func (a *app) fieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <module>",
		Short: "Show the import fields of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := a.api.Fields(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get fields: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), fields)
		},
	}
}

func (a *app) templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template <module>",
		Short: "Download the blank workbook for a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := a.api.Template(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get template: %w", err)
			}
			data, err := base64.StdEncoding.DecodeString(tf.ContentBase64)
			if err != nil {
				return fmt.Errorf("decode template: %w", err)
			}

			path, _ := cmd.Flags().GetString(flagOutput)
			if path == "" {
				path = tf.FileName
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringP(flagOutput, "o", "", "Output path (default: server-suggested file name)")
	return cmd
}
