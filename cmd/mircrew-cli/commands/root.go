package commands

import (
	"context"
	"fmt"
	"os"

	"mircrewapi/internal/app"
	"mircrewapi/internal/components/telemetry"
	"mircrewapi/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	mircrew app.App
)

var rootCmd = &cobra.Command{
	Use:          "mircrew-cli",
	Short:        "mircrew-cli searches mircrew releases and prints their magnet links.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		telemetry.InitSlog(verbose || cfg.Debug)

		mircrew, err = app.Open(cmd.Context(), cfg, telemetry.SlogAPI{})
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return mircrew.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The config file to read.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
