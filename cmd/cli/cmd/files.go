package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var filesCmd = &cobra.Command{
	Use:   "files [execution_id]",
	Short: "List per-file outcomes of an execution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		executionID := args[0]

		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the DOCFLOW_TOKEN environment variable")
			return
		}

		client := NewFlowClient(viper.GetString("url"), token)
		files, err := client.ListExecutionFiles(executionID)
		if err != nil {
			cmd.Printf("Error fetching files: %s\n", err)
			os.Exit(1)
		}

		if len(files) == 0 {
			cmd.Println("No files found for this execution.")
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FILE\tSIZE\tSTATUS\tSTAGE\tSTEP\tERROR")
		for _, f := range files {
			errMsg := ""
			if f.Error != nil {
				// Truncate long error messages for the table view
				errMsg = *f.Error
				if len(errMsg) > 50 {
					errMsg = errMsg[:47] + "..."
				}
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				f.FileName,
				formatSize(f.FileSize),
				f.Status,
				f.Stage,
				f.ToolStepReached,
				errMsg,
			)
		}
		w.Flush()
	},
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

func init() {
	rootCmd.AddCommand(filesCmd)
}
