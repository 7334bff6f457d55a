package commands

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/orchestrator"
)

// maxPrintedErrors caps how many row errors are listed on the terminal.
const maxPrintedErrors = 20

func (a *app) previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <module> <file>",
		Short: "Validate a workbook without importing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read workbook: %w", err)
			}
			result, err := a.api.Preview(cmd.Context(), args[0], filepath.Base(args[1]), data)
			if err != nil {
				return fmt.Errorf("failed to preview: %w", err)
			}

			out := cmd.OutOrStdout()
			printPreview(out, result)
			errorFile, _ := cmd.Flags().GetString(flagErrorFile)
			return writeErrorFile(out, errorFile, result)
		},
	}
	cmd.Flags().String(flagErrorFile, "", "Write the annotated error workbook to this path")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <module> <file>",
		Short: "Validate, confirm and follow an import to completion",
		Long: `import uploads the workbook, shows the validation summary, confirms the
valid rows and polls the job until it completes or fails.

When some rows fail validation the import stops unless --yes is given, in
which case only the valid rows are imported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			moduleKey, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read workbook: %w", err)
			}

			yes, _ := cmd.Flags().GetBool(flagYes)
			interval, _ := cmd.Flags().GetDuration(flagInterval)
			attempts, _ := cmd.Flags().GetInt(flagAttempts)
			errorFile, _ := cmd.Flags().GetString(flagErrorFile)

			out := cmd.OutOrStdout()
			m := orchestrator.New(a.api,
				orchestrator.WithPollInterval(interval),
				orchestrator.WithMaxAttempts(attempts),
				orchestrator.WithObserver(progressPrinter(out)),
			)

			ctx := cmd.Context()
			preview, err := m.Upload(ctx, moduleKey, filepath.Base(path), data)
			if err != nil {
				return err
			}
			printPreview(out, preview.Result)
			if err := writeErrorFile(out, errorFile, preview.Result); err != nil {
				return err
			}

			if preview.Result.ValidCount == 0 {
				return errors.New("no valid rows to import")
			}
			if preview.Result.ErrorCount > 0 && !yes {
				return fmt.Errorf("%d rows failed validation; fix them or rerun with --%s to import the %d valid rows",
					preview.Result.ErrorCount, flagYes, preview.Result.ValidCount)
			}

			proc, err := m.Confirm(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Job %s queued\n", proc.JobID)

			state, err := m.Poll(ctx)
			if err != nil && ctx.Err() != nil {
				fmt.Fprintf(out, "Stopped waiting. Job %s keeps running; check it with: importctl status %s\n", proc.JobID, proc.JobID)
				return err
			}

			switch s := state.(type) {
			case orchestrator.Completed:
				printResult(out, s.JobID, s.Result)
				return nil
			case orchestrator.Failed:
				if s.Reason == orchestrator.ReasonTimeout {
					fmt.Fprintf(out, "%s\nCheck it later with: importctl status %s\n", s.Message, s.JobID)
					return err
				}
				return fmt.Errorf("import job %s failed: %s", s.JobID, s.Message)
			}
			return err
		},
	}
	cmd.Flags().BoolP(flagYes, "y", false, "Import the valid rows even when some rows failed validation")
	cmd.Flags().Duration(flagInterval, orchestrator.DefaultPollInterval, "Pause between status polls")
	cmd.Flags().Int(flagAttempts, orchestrator.DefaultMaxAttempts, "Status polls before giving up")
	cmd.Flags().String(flagErrorFile, "", "Write the annotated error workbook to this path")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of an import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.api.Status(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job status: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func (a *app) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.api.Cancel(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel job: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

// progressPrinter prints each processing update once.
func progressPrinter(w io.Writer) func(orchestrator.State) {
	return func(s orchestrator.State) {
		if p, ok := s.(orchestrator.Processing); ok {
			fmt.Fprintf(w, "[%s] job %s %s %d%%\n", time.Now().Format(time.TimeOnly), p.JobID, p.Status, p.Progress)
		}
	}
}

func printPreview(w io.Writer, r core.PreviewResult) {
	fmt.Fprintf(w, "Rows: %d  valid: %d  invalid: %d\n", r.TotalRows, r.ValidCount, r.ErrorCount)
	for i, e := range r.Errors {
		if i == maxPrintedErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(r.Errors)-maxPrintedErrors)
			break
		}
		fmt.Fprintf(w, "  row %d, %s: %s\n", e.Row, e.Column, e.Error)
	}
}

func printResult(w io.Writer, jobID string, r core.JobResult) {
	fmt.Fprintf(w, "Job %s completed: %d created, %d failed\n", jobID, r.Created, r.Failed)
	for i, e := range r.RowErrors {
		if i == maxPrintedErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(r.RowErrors)-maxPrintedErrors)
			break
		}
		fmt.Fprintf(w, "  row %d: %s\n", e.Row, e.Error)
	}
}

func writeErrorFile(w io.Writer, path string, r core.PreviewResult) error {
	if path == "" || r.ErrorFileBase64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(r.ErrorFileBase64)
	if err != nil {
		return fmt.Errorf("decode error file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write error file: %w", err)
	}
	fmt.Fprintf(w, "Error workbook written to %s\n", path)
	return nil
}
