package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history [workflow_id]",
	Short: "Inspect or clear a workflow's dedup history",
	Long: `List the file history entries that make repeated runs skip already
processed files, or clear them with --clear to force reprocessing.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workflowID := args[0]

		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the DOCFLOW_TOKEN environment variable")
			return
		}

		client := NewFlowClient(viper.GetString("url"), token)

		clear, _ := cmd.Flags().GetBool("clear")
		if clear {
			result, err := client.ClearFileHistory(workflowID)
			if err != nil {
				printClientError(cmd, err)
				return
			}
			cmd.Printf("✓ Cleared %d history entries.\n", result.Cleared)
			return
		}

		entries, err := client.ListFileHistory(workflowID)
		if err != nil {
			cmd.Printf("Error fetching history: %s\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			cmd.Println("No history entries found for this workflow.")
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tCACHE KEY\tSTATUS\tCREATED AT")
		for _, e := range entries {
			key := e.CacheKey
			if len(key) > 16 {
				key = key[:16] + "..."
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, key, e.Status, e.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

func init() {
	historyCmd.Flags().Bool("clear", false, "Delete the workflow's history entries")
	rootCmd.AddCommand(historyCmd)
}
