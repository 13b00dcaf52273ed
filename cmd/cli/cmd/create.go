package cmd

import (
	"encoding/json"
	"os"

	"docflow/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new workflow from a JSON definition",
	Long: `Create a new workflow definition that can be run later.

The definition file holds the source, destination, and tool chain:

  {
    "name": "invoices",
    "source": {"kind": "filesystem", "settings": {"root": "/data/in"}},
    "destination": {"kind": "filesystem", "settings": {"directory": "/data/out"}},
    "tool_chain": [
      {"tool_id": "ocr", "runner": "docker", "image": "docflow/ocr:1.2"},
      {"tool_id": "extract", "runner": "http", "service_url": "http://extract:8000/run"}
    ]
  }

Example:
  flowctl create --file workflow.json`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			cmd.Println("Error: --file is required")
			return
		}

		url := viper.GetString("url")
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the DOCFLOW_TOKEN environment variable")
			return
		}

		data, err := os.ReadFile(file)
		if err != nil {
			cmd.Printf("Failed to read %s: %v\n", file, err)
			return
		}

		var req api.CreateWorkflowRequest
		if err := json.Unmarshal(data, &req); err != nil {
			cmd.Printf("Invalid workflow definition: %v\n", err)
			return
		}

		client := NewFlowClient(url, token)
		result, err := client.CreateWorkflow(req)
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Workflow created!\nID: %s\nName: %s\n", result.WorkflowID, req.Name)
	},
}

func init() {
	createCmd.Flags().StringP("file", "f", "", "Path to the workflow definition JSON (required)")
	rootCmd.AddCommand(createCmd)
}
