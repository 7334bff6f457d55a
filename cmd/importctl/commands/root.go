// Package commands implements the importctl command line.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/client"
)

// flag names
const (
	flagServerAddress = "server-address"
	flagTimeout       = "timeout"
	flagOutput        = "output"
	flagErrorFile     = "error-file"
	flagYes           = "yes"
	flagInterval      = "interval"
	flagAttempts      = "attempts"
)

// environment variable names
const (
	envServerAddress = "IMPORTCTL_SERVER_ADDRESS"
)

// app holds what the subcommands share once flags are parsed.
type app struct {
	serverAddress string
	timeout       time.Duration
	api           *client.APIClient
}

// NewRootCmd builds the importctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "importctl",
		Short: "importctl - bulk spreadsheet imports from the command line",
		Long: `importctl talks to the import API: download templates, validate
workbooks, and run imports to completion.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Flag > env var > default
			if !cmd.Flags().Changed(flagServerAddress) {
				if env := os.Getenv(envServerAddress); env != "" {
					a.serverAddress = env
				}
			}
			if a.serverAddress == "" {
				return fmt.Errorf("server address cannot be empty")
			}

			opts := client.DefaultOptions()
			opts.BaseURL = a.serverAddress
			if a.timeout > 0 {
				opts.Timeout = a.timeout
			}
			api, err := client.NewClient(opts)
			if err != nil {
				return err
			}
			a.api = api
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.serverAddress, flagServerAddress, "s", client.DefaultBaseURL,
		"Address of the import API server (env: "+envServerAddress+")")
	root.PersistentFlags().DurationVar(&a.timeout, flagTimeout, client.DefaultTimeout, "Timeout for each API request")

	root.AddCommand(
		a.modulesCmd(),
		a.fieldsCmd(),
		a.templateCmd(),
		a.previewCmd(),
		a.importCmd(),
		a.statusCmd(),
		a.cancelCmd(),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
