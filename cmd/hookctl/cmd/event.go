package cmd

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// eventCmd represents the event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Dispatch and inspect webhook events",
}

var eventDispatchCmd = &cobra.Command{
	Use:   "dispatch [event-type] [event-id] [payload-json]",
	Short: "Dispatch a webhook event",
	Long: `Dispatch an event to every active endpoint subscribed to its type.

Example:
  hookctl event dispatch invoice.paid inv_789 '{"amount":4200,"currency":"usd"}'`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := parseJSONMap(args[2])
		if err != nil {
			return fmt.Errorf("invalid payload JSON: %w", err)
		}

		body := map[string]any{
			"event_type": args[0],
			"event_id":   args[1],
			"payload":    payload,
		}
		if s, _ := cmd.Flags().GetString("source-type"); s != "" {
			body["source_type"] = s
		}
		if s, _ := cmd.Flags().GetString("source-id"); s != "" {
			body["source_id"] = s
		}
		if m, _ := cmd.Flags().GetString("metadata"); m != "" {
			meta, err := parseJSONMap(m)
			if err != nil {
				return fmt.Errorf("invalid metadata JSON: %w", err)
			}
			body["metadata"] = meta
		}

		var evt map[string]any
		if err := apiRequest(http.MethodPost, "/v1/events", nil, body, &evt); err != nil {
			return fmt.Errorf("failed to dispatch event: %w", err)
		}

		if outputJSON {
			printOutput(evt)
		} else {
			fmt.Printf("Dispatched event: %v\n", evt["id"])
			fmt.Printf("  Type: %v\n", evt["event_type"])
		}
		return nil
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dispatched events",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if et, _ := cmd.Flags().GetString("event-type"); et != "" {
			q.Set("event_type", et)
		}
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			q.Set("limit", fmt.Sprint(n))
		}

		var events []map[string]any
		if err := apiRequest(http.MethodGet, "/v1/events", q, nil, &events); err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		if outputJSON {
			printOutput(events)
		} else {
			for _, e := range events {
				fmt.Printf("%v  %v  %v  processed=%v\n", e["id"], e["event_type"], e["created_at"], e["is_processed"])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventDispatchCmd)
	eventCmd.AddCommand(eventListCmd)

	eventDispatchCmd.Flags().String("source-type", "", "originating system type")
	eventDispatchCmd.Flags().String("source-id", "", "originating entity id")
	eventDispatchCmd.Flags().String("metadata", "", "event metadata as a JSON object")

	eventListCmd.Flags().String("event-type", "", "filter by event type")
	eventListCmd.Flags().Int("limit", 50, "max events to return")
}
