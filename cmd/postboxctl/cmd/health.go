package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the relay's health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
			Store   bool   `json:"store"`
		}
		if err := doRequest(http.MethodGet, "/healthz", nil, nil, &out); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		if outputJSON {
			printOutput(out)
			return nil
		}
		if out.OK {
			fmt.Println("OK")
		} else {
			fmt.Printf("UNHEALTHY: %s\n", out.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
