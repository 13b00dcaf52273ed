package cmd

import (
	"fmt"
	"time"

	"docflow/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [execution_id]",
	Short: "Get status of an execution",
	Long:  `Retrieve detailed status information for a workflow execution, including its current state (PENDING, EXECUTING, COMPLETED, ERROR, STOPPED) and per-file progress counters.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		executionID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the DOCFLOW_TOKEN environment variable")
			return
		}

		client := NewFlowClient(url, token)
		execution, err := client.GetExecution(executionID)
		if err != nil {
			printClientError(cmd, err)
			return
		}

		printStatus(cmd, execution)
	},
}

func printStatus(cmd *cobra.Command, execution *api.ExecutionStatusResponse) {
	// Header with status icon
	icon := statusIcon(execution.Status)
	cmd.Printf("%s %sExecution Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, execution.ID)
	cmd.Printf("%sWorkflow:%s    %s\n", colorDim, colorReset, execution.WorkflowID)
	cmd.Printf("%sPipeline:%s    %s\n", colorDim, colorReset, execution.PipelineName)

	// Status with icon
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(execution.Status))

	// Progress counters. Total is -1 until dispatch has fixed it.
	if execution.TotalFiles >= 0 {
		done := execution.CompletedFiles + execution.FailedFiles
		cmd.Printf("%sProgress:%s    %d/%d files", colorDim, colorReset, done, execution.TotalFiles)
		if execution.FailedFiles > 0 {
			cmd.Printf(" %s(%d failed)%s", colorRed, execution.FailedFiles, colorReset)
		}
		if execution.SkippedFiles > 0 {
			cmd.Printf(" %s(%d skipped)%s", colorCyan, execution.SkippedFiles, colorReset)
		}
		cmd.Println()
	} else {
		cmd.Printf("%sProgress:%s    dispatching...\n", colorDim, colorReset)
	}

	// Error (if present)
	if execution.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *execution.Error, colorReset)
	}

	// Timestamps with relative time
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(execution.CreatedAt))

	if isTerminalStatus(execution.Status) {
		duration := execution.ModifiedAt.Sub(execution.CreatedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(execution.ModifiedAt),
			colorCyan, formatDuration(duration), colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func isTerminalStatus(status string) bool {
	return status == "COMPLETED" || status == "ERROR" || status == "STOPPED"
}

func statusIcon(status string) string {
	switch status {
	case "COMPLETED":
		return colorGreen + "✓" + colorReset
	case "ERROR":
		return colorRed + "✗" + colorReset
	case "STOPPED":
		return colorYellow + "■" + colorReset
	case "EXECUTING":
		return colorYellow + "⏳" + colorReset
	case "PENDING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "COMPLETED":
		return icon + " " + colorGreen + status + colorReset
	case "ERROR":
		return icon + " " + colorRed + status + colorReset
	case "STOPPED":
		return icon + " " + colorYellow + status + colorReset
	case "EXECUTING":
		return icon + " " + colorYellow + status + colorReset
	case "PENDING":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	relative := relativeTime(t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
