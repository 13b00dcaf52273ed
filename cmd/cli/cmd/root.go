package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "flowctl is a command line tool for interacting with the docflow platform",
	Long: `flowctl is the command-line interface for the docflow document processing platform.

docflow runs user-defined workflows over sets of input files: each file is
pushed through an ordered chain of tools (containerized or HTTP services)
and the result lands in a configured destination. The architecture splits
into a controller and a worker pool:

  - Controller: HTTP API for workflows, execution triggers, and status
  - Workers: pull dispatched files from the queue and run their tool chains

Common workflows:

  Create an organization (returns the API key once):
    flowctl org create --name "acme"

  Create a workflow from a JSON definition:
    flowctl create --file workflow.json

  Trigger an execution:
    flowctl run <workflow-id>

  Check execution progress:
    flowctl status <execution-id>

  Inspect per-file outcomes:
    flowctl files <execution-id>

  Stop a running execution:
    flowctl stop <execution-id>

  Inspect or clear the dedup history:
    flowctl history <workflow-id>
    flowctl history <workflow-id> --clear

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    DOCFLOW_API_URL   API endpoint (default: http://localhost:6161)
    DOCFLOW_TOKEN     Organization API token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".flowctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".flowctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "DOCFLOW_VARNAME"
	viper.SetEnvPrefix("DOCFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "docflow Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API Token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
