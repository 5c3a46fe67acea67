package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type eventSummaryOut struct {
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	MailboxName    string `json:"mailbox_name"`
	TargetURL      string `json:"target_url"`
	Attempts       int    `json:"attempts"`
}

type eventDetailOut struct {
	Event struct {
		TrackingNumber string          `json:"tracking_number"`
		MailboxID      string          `json:"mailbox_id"`
		Payload        json.RawMessage `json:"payload"`
		Status         string          `json:"status"`
		CreatedAt      time.Time       `json:"created_at"`
	} `json:"event"`
	Attempts []struct {
		AttemptNumber int       `json:"attempt_number"`
		Status        string    `json:"status"`
		Error         string    `json:"error,omitempty"`
		AttemptedAt   time.Time `json:"attempted_at"`
	} `json:"attempts"`
}

// eventCmd represents the event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Inspect and retry webhook events",
}

var listEventCmd = &cobra.Command{
	Use:   "list",
	Short: "List all webhook events with attempt counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []eventSummaryOut
		if err := doRequest(http.MethodGet, "/api/webhooks", nil, nil, &out); err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		if outputJSON {
			printOutput(out)
			return nil
		}
		if len(out) == 0 {
			fmt.Println("No events.")
			return nil
		}
		for _, e := range out {
			fmt.Printf("%s  %-10s attempts=%d  %s -> %s\n",
				e.TrackingNumber, e.Status, e.Attempts, e.MailboxName, e.TargetURL)
		}
		return nil
	},
}

var getEventCmd = &cobra.Command{
	Use:   "get [tracking-number]",
	Short: "Show one event and its full attempt history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out eventDetailOut
		if err := doRequest(http.MethodGet, "/api/webhooks/"+args[0], nil, nil, &out); err != nil {
			return fmt.Errorf("failed to get event: %w", err)
		}

		if outputJSON {
			printOutput(out)
			return nil
		}
		fmt.Printf("Event %s\n", out.Event.TrackingNumber)
		fmt.Printf("  Status: %s\n", out.Event.Status)
		fmt.Printf("  Mailbox: %s\n", out.Event.MailboxID)
		fmt.Printf("  Created: %s\n", out.Event.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Attempts (%d):\n", len(out.Attempts))
		for _, a := range out.Attempts {
			line := fmt.Sprintf("    #%d %-8s %s", a.AttemptNumber, a.Status, a.AttemptedAt.Format("15:04:05"))
			if a.Error != "" {
				line += "  " + a.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

var retryEventCmd = &cobra.Command{
	Use:   "retry [tracking-number]",
	Short: "Retry a failed event",
	Long: `Reset a terminally failed event to pending and start a fresh
delivery cycle. Events that are pending or delivered are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Message string `json:"message"`
		}
		if err := doRequest(http.MethodPost, "/api/webhooks/"+args[0]+"/retry", nil, nil, &out); err != nil {
			return fmt.Errorf("failed to retry event: %w", err)
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Println(out.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(listEventCmd)
	eventCmd.AddCommand(getEventCmd)
	eventCmd.AddCommand(retryEventCmd)
}
