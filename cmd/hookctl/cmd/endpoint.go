package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// endpointCmd represents the endpoint command
var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manage webhook endpoints",
	Long:  `Register, inspect, update, test and remove webhook endpoints.`,
}

var endpointCreateCmd = &cobra.Command{
	Use:   "create [name] [url] [event-types]",
	Short: "Register a webhook endpoint",
	Long: `Register a new webhook endpoint subscribed to a comma-separated
list of event types.

Example:
  hookctl endpoint create billing-hooks https://example.com/hooks invoice.paid,invoice.voided`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"name":        args[0],
			"url":         args[1],
			"event_types": strings.Split(args[2], ","),
		}
		if d, _ := cmd.Flags().GetString("description"); d != "" {
			body["description"] = d
		}
		if r, _ := cmd.Flags().GetInt("max-retries"); cmd.Flags().Changed("max-retries") {
			body["max_retries"] = r
		}
		if t, _ := cmd.Flags().GetInt("timeout-seconds"); cmd.Flags().Changed("timeout-seconds") {
			body["timeout_seconds"] = t
		}

		var ep map[string]any
		if err := apiRequest(http.MethodPost, "/v1/endpoints", nil, body, &ep); err != nil {
			return fmt.Errorf("failed to create endpoint: %w", err)
		}

		if outputJSON {
			printOutput(ep)
		} else {
			fmt.Printf("Created endpoint: %v\n", ep["id"])
			fmt.Printf("  Secret: %v\n", ep["secret"])
		}
		return nil
	},
}

var endpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List webhook endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			q.Set("status", s)
		}
		if et, _ := cmd.Flags().GetString("event-type"); et != "" {
			q.Set("event_type", et)
		}

		var eps []map[string]any
		if err := apiRequest(http.MethodGet, "/v1/endpoints", q, nil, &eps); err != nil {
			return fmt.Errorf("failed to list endpoints: %w", err)
		}

		if outputJSON {
			printOutput(eps)
		} else {
			for _, ep := range eps {
				fmt.Printf("%v  %v  %v  active=%v\n", ep["id"], ep["name"], ep["url"], ep["is_active"])
			}
		}
		return nil
	},
}

var endpointGetCmd = &cobra.Command{
	Use:   "get [endpoint-id]",
	Short: "Show a webhook endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ep map[string]any
		if err := apiRequest(http.MethodGet, "/v1/endpoints/"+args[0], nil, nil, &ep); err != nil {
			return fmt.Errorf("failed to get endpoint: %w", err)
		}
		printOutput(ep)
		return nil
	},
}

var endpointUpdateCmd = &cobra.Command{
	Use:   "update [endpoint-id] [patch-json]",
	Short: "Update fields of a webhook endpoint",
	Long: `Apply a partial update to an endpoint.

Example:
  hookctl endpoint update ep_123 '{"status":"suspended"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseJSONMap(args[1])
		if err != nil {
			return fmt.Errorf("invalid patch JSON: %w", err)
		}
		var ep map[string]any
		if err := apiRequest(http.MethodPatch, "/v1/endpoints/"+args[0], nil, patch, &ep); err != nil {
			return fmt.Errorf("failed to update endpoint: %w", err)
		}
		printOutput(ep)
		return nil
	},
}

var endpointDeleteCmd = &cobra.Command{
	Use:   "delete [endpoint-id]",
	Short: "Delete a webhook endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiRequest(http.MethodDelete, "/v1/endpoints/"+args[0], nil, nil, nil); err != nil {
			return fmt.Errorf("failed to delete endpoint: %w", err)
		}
		fmt.Printf("Deleted endpoint: %s\n", args[0])
		return nil
	},
}

var endpointTestCmd = &cobra.Command{
	Use:   "test [endpoint-id]",
	Short: "Send a test event to an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res map[string]any
		if err := apiRequest(http.MethodPost, "/v1/endpoints/"+args[0]+"/test", nil, nil, &res); err != nil {
			return fmt.Errorf("failed to test endpoint: %w", err)
		}

		if outputJSON {
			printOutput(res)
		} else {
			fmt.Printf("Success: %v\n", res["success"])
			fmt.Printf("  Status: %v\n", res["status_code"])
			fmt.Printf("  Latency: %vms\n", res["latency_ms"])
			if e, ok := res["error"].(string); ok && e != "" {
				fmt.Printf("  Error: %s\n", e)
			}
		}
		return nil
	},
}

var endpointLogsCmd = &cobra.Command{
	Use:   "logs [endpoint-id]",
	Short: "Show recent delivery logs for an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			q.Set("limit", fmt.Sprint(n))
		}
		var logs []map[string]any
		if err := apiRequest(http.MethodGet, "/v1/endpoints/"+args[0]+"/logs", q, nil, &logs); err != nil {
			return fmt.Errorf("failed to fetch logs: %w", err)
		}

		if outputJSON {
			printOutput(logs)
		} else {
			for _, l := range logs {
				fmt.Printf("%v  [%v]  %v\n", l["created_at"], l["level"], l["message"])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointCmd)
	endpointCmd.AddCommand(endpointCreateCmd)
	endpointCmd.AddCommand(endpointListCmd)
	endpointCmd.AddCommand(endpointGetCmd)
	endpointCmd.AddCommand(endpointUpdateCmd)
	endpointCmd.AddCommand(endpointDeleteCmd)
	endpointCmd.AddCommand(endpointTestCmd)
	endpointCmd.AddCommand(endpointLogsCmd)

	endpointCreateCmd.Flags().String("description", "", "endpoint description")
	endpointCreateCmd.Flags().Int("max-retries", 0, "max retry attempts before dead-lettering")
	endpointCreateCmd.Flags().Int("timeout-seconds", 0, "per-attempt HTTP timeout in seconds")

	endpointListCmd.Flags().String("status", "", "filter by status (active, suspended, inactive)")
	endpointListCmd.Flags().String("event-type", "", "filter by subscribed event type")

	endpointLogsCmd.Flags().Int("limit", 50, "max log entries to return")
}
