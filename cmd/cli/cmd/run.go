package cmd

import (
	"docflow/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [workflow_id]",
	Short: "Trigger a new execution for a workflow",
	Long: `Discover the workflow's source files and dispatch them through its tool chain.

Files already processed with the same content and tool configuration are
skipped unless --no-history is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workflowID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the DOCFLOW_TOKEN environment variable")
			return
		}

		pipelineName, _ := cmd.Flags().GetString("pipeline-name")
		noHistory, _ := cmd.Flags().GetBool("no-history")

		req := api.ExecuteWorkflowRequest{PipelineName: pipelineName}
		if noHistory {
			useHistory := false
			req.UseFileHistory = &useHistory
		}

		client := NewFlowClient(url, token)
		result, err := client.ExecuteWorkflow(workflowID, req)
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("🚀 Execution started!\nID:     %s\nStatus: %s\n", result.ExecutionID, result.Status)
	},
}

func init() {
	runCmd.Flags().String("pipeline-name", "", "Pipeline name recorded on the execution (defaults to the workflow name)")
	runCmd.Flags().Bool("no-history", false, "Reprocess every file, ignoring the dedup history")
	rootCmd.AddCommand(runCmd)
}
