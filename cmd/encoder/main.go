package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/vusic/cmd/encoder/commands"
	"github.com/inferloop/vusic/pkg/constants"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	globals := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: constants.AppDescription,
		Long: `Run the bidirectional GRU context encoder over spectral frame sequences
and inspect its parameters.`,
		Version:       commands.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&globals.ConfigFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewEncodeCmd(globals))
	rootCmd.AddCommand(commands.NewInspectCmd(globals))
	rootCmd.AddCommand(commands.NewDashboardCmd(globals))
	rootCmd.AddCommand(commands.NewAlertsCmd(globals))
	rootCmd.AddCommand(commands.NewVersionCmd())

	return rootCmd
}
