package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type mailboxOut struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
}

// mailboxCmd represents the mailbox command
var mailboxCmd = &cobra.Command{
	Use:   "mailbox",
	Short: "Manage mailboxes",
	Long:  `Register and list webhook destinations (mailboxes).`,
}

var createMailboxCmd = &cobra.Command{
	Use:   "create [name] [target-url]",
	Short: "Register a new mailbox",
	Long: `Register a new mailbox with a delivery target URL.

Example:
  postboxctl mailbox create orders https://example.com/hooks/orders`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"name": args[0], "target_url": args[1]}

		var out mailboxOut
		if err := doRequest(http.MethodPost, "/api/mailboxes", body, nil, &out); err != nil {
			return fmt.Errorf("failed to create mailbox: %w", err)
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Printf("Created mailbox: %s\n", out.ID)
			fmt.Printf("  Name: %s\n", out.Name)
			fmt.Printf("  Target URL: %s\n", out.TargetURL)
			fmt.Printf("  API key: %s\n", out.APIKey)
			fmt.Printf("  Created: %s\n", out.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var listMailboxCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []mailboxOut
		if err := doRequest(http.MethodGet, "/api/mailboxes", nil, nil, &out); err != nil {
			return fmt.Errorf("failed to list mailboxes: %w", err)
		}

		if outputJSON {
			printOutput(out)
			return nil
		}
		if len(out) == 0 {
			fmt.Println("No mailboxes registered.")
			return nil
		}
		for _, m := range out {
			fmt.Printf("%s  %-20s %s\n", m.ID, m.Name, m.TargetURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailboxCmd)
	mailboxCmd.AddCommand(createMailboxCmd)
	mailboxCmd.AddCommand(listMailboxCmd)
}
