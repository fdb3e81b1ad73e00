package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/berfenger/serial2govee/internal/config"
	"github.com/berfenger/serial2govee/internal/govee"

	"github.com/spf13/cobra"
)

var (
	// Flags
	flagOut    string
	flagFormat string
)

var rootCmd = &cobra.Command{
	Use:   "govee-devices",
	Short: "Dump the Govee device listing",
	Long: `govee-devices calls the Govee devices endpoint with GOVEE_API_KEY, prints the
response and writes it to a file. Use it to fill GOVEE_DEVICES.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDump,
}

func init() {
	rootCmd.Flags().StringVar(&flagOut, "out", "devices.json", "Output file")
	rootCmd.Flags().StringVar(&flagFormat, "format", "json", "Output format: json, yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERR] %v\n", err)
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagFormat)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			return &exitError{code: 1, err: errors.New("GOVEE_API_KEY missing in .env")}
		}
		return &exitError{code: 1, err: err}
	}

	client := govee.NewClient(cfg.Govee)
	return dump(cmd.Context(), client, flagOut, format, cmd.OutOrStdout())
}
