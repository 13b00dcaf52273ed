package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var stopCmd = &cobra.Command{
	Use:   "stop [execution_id]",
	Short: "Stop a running execution",
	Long: `Mark an execution STOPPED and discard its queued files.

Files already claimed by a worker run to completion; only undispatched
work is dropped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		executionID := args[0]

		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the DOCFLOW_TOKEN environment variable")
			return
		}

		client := NewFlowClient(viper.GetString("url"), token)
		result, err := client.StopExecution(executionID)
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("■ Execution stopped.\nID:     %s\nStatus: %s\n", result.ExecutionID, result.Status)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
