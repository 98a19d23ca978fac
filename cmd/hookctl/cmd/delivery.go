package cmd

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// deliveryCmd represents the delivery command
var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Inspect and retry webhook deliveries",
}

var deliveryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List delivery attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			q.Set("status", s)
		}
		if id, _ := cmd.Flags().GetString("endpoint-id"); id != "" {
			q.Set("endpoint_id", id)
		}
		if id, _ := cmd.Flags().GetString("event-id"); id != "" {
			q.Set("event_id", id)
		}
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			q.Set("limit", fmt.Sprint(n))
		}

		var deliveries []map[string]any
		if err := apiRequest(http.MethodGet, "/v1/deliveries", q, nil, &deliveries); err != nil {
			return fmt.Errorf("failed to list deliveries: %w", err)
		}

		if outputJSON {
			printOutput(deliveries)
		} else {
			for _, d := range deliveries {
				fmt.Printf("%v  endpoint=%v  attempt=%v  status=%v  http=%v\n",
					d["id"], d["endpoint_id"], d["attempt_number"], d["status"], d["response_status"])
			}
		}
		return nil
	},
}

var deliveryRetryCmd = &cobra.Command{
	Use:   "retry [delivery-id]",
	Short: "Retry a failed delivery now",
	Long: `Retry a delivery that is awaiting its next scheduled attempt.
Retrying a delivery that is not awaiting retry is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var d map[string]any
		if err := apiRequest(http.MethodPost, "/v1/deliveries/"+args[0]+"/retry", nil, nil, &d); err != nil {
			return fmt.Errorf("failed to retry delivery: %w", err)
		}

		if outputJSON {
			printOutput(d)
		} else {
			fmt.Printf("Delivery: %v\n", d["id"])
			fmt.Printf("  Status: %v\n", d["status"])
			fmt.Printf("  Attempt: %v\n", d["attempt_number"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(deliveryListCmd)
	deliveryCmd.AddCommand(deliveryRetryCmd)

	deliveryListCmd.Flags().String("status", "", "filter by status (pending, success, failed)")
	deliveryListCmd.Flags().String("endpoint-id", "", "filter by endpoint")
	deliveryListCmd.Flags().String("event-id", "", "filter by event")
	deliveryListCmd.Flags().Int("limit", 50, "max deliveries to return")
}
