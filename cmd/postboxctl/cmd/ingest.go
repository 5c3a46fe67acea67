package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"postbox/internal/api"

	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [mailbox-id] [json-payload]",
	Short: "Send a test payload through a mailbox",
	Long: `Ingest a JSON payload for a mailbox, as an external producer would.

Example:
  postboxctl ingest 6f1e... '{"x":1}' --api-key 9c3a...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mailboxID := args[0]
		apiKey, _ := cmd.Flags().GetString("api-key")

		var payload json.RawMessage
		if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
			return fmt.Errorf("payload is not valid json: %w", err)
		}

		var out struct {
			TrackingNumber string `json:"tracking_number"`
		}
		headers := map[string]string{api.APIKeyHeader: apiKey}
		if err := doRequest(http.MethodPost, "/webhooks/"+mailboxID, payload, headers, &out); err != nil {
			return fmt.Errorf("failed to ingest: %w", err)
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Printf("Accepted, tracking number: %s\n", out.TrackingNumber)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("api-key", "", "mailbox API key (required)")
	ingestCmd.MarkFlagRequired("api-key")
}
