// Package main provides the meetavatar command line.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/meetavatar/internal/config"
	"github.com/normanking/meetavatar/internal/logging"
)

var (
	// Version information (set at build time)
	version = "dev"

	configPath string
	verbose    bool

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meetavatar",
		Short: "Animated participant avatars for video meetings",
		Long: titleStyle.Render("meetavatar") + `

Resolves participant identities, renders avatars and drives talking
animations from live audio levels.

` + dimStyle.Render("Use 'meetavatar [command] --help' for more information."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ~/.meetavatar/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to the console")

	rootCmd.AddCommand(
		newServeCmd(),
		newIdentityCmd(),
		newDialInCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meetavatar %s\n", version)
		},
	}
}

// newLogger builds the process logger. Only serve logs to the console unless
// --verbose is set.
func newLogger(cfg *config.Config, console bool) (*logging.Logger, error) {
	level := logging.LogLevel(cfg.Log.Level)
	if verbose {
		level = logging.LevelDebug
		console = true
	}
	return logging.New(&logging.Config{
		Dir:        cfg.Log.Dir,
		Level:      level,
		MaxHistory: cfg.Log.MaxHistory,
		Console:    console,
	})
}
