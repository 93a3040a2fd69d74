// Package cmd implements the command-line interface for sitewatch.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cmdjobs "github.com/sitewatch/sitewatch/cmd/jobs"
	cmdrun "github.com/sitewatch/sitewatch/cmd/run"
	cmdserve "github.com/sitewatch/sitewatch/cmd/serve"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "sitewatch",
		Short: "Scheduled web crawling and content extraction",
		Long: `Sitewatch runs configured crawl jobs on a schedule, extracts
content records from the fetched pages and serves a management API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment overrides are visible to viper.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml or /etc/sitewatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("sitewatch version 1.0.0")
		},
	})

	rootCmd.AddCommand(cmdserve.Command(&cfgFile, &debug))
	rootCmd.AddCommand(cmdrun.Command(&cfgFile, &debug))
	rootCmd.AddCommand(cmdjobs.Command(&cfgFile, &debug))
}
