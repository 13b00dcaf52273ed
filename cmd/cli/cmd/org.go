package cmd

import (
	"docflow/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new organization",
	Long: `Create a new organization and print its API key.

The key is shown exactly once; store it somewhere safe.

Example:
  flowctl org create --name "acme"`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}

		url := viper.GetString("url")

		// Organization creation is the bootstrap call; no token yet.
		client := NewFlowClient(url, viper.GetString("token"))
		result, err := client.CreateOrganization(api.CreateOrganizationRequest{Name: name})
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Organization created!\nID:      %s\nName:    %s\nAPI Key: %s\n", result.ID, result.Name, result.APIKey)
		cmd.Println("\nStore the API key now; it will not be shown again.")
	},
}

// printClientError renders APIError and transport errors consistently.
func printClientError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

func init() {
	orgCreateCmd.Flags().StringP("name", "n", "", "Name of the organization (required)")
	orgCmd.AddCommand(orgCreateCmd)
	rootCmd.AddCommand(orgCmd)
}
