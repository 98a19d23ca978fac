package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate delivery statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st map[string]any
		if err := apiRequest(http.MethodGet, "/v1/stats", nil, nil, &st); err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		if outputJSON {
			printOutput(st)
		} else {
			fmt.Printf("Endpoints:  %v\n", st["total_endpoints"])
			fmt.Printf("Events:     %v\n", st["total_events"])
			fmt.Printf("Deliveries: %v\n", st["total_deliveries"])
			fmt.Printf("Success:    %.1f%%\n", toFloat(st["success_rate"])*100)
			if byStatus, ok := st["by_status"].(map[string]any); ok {
				for status, n := range byStatus {
					fmt.Printf("  %s: %v\n", status, n)
				}
			}
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete events, deliveries and logs past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("retention-days")
		body := map[string]any{"retention_days": days}

		var res map[string]any
		if err := apiRequest(http.MethodPost, "/v1/cleanup", nil, body, &res); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}

		if outputJSON {
			printOutput(res)
		} else {
			fmt.Printf("Deleted events:     %v\n", res["deleted_events"])
			fmt.Printf("Deleted deliveries: %v\n", res["deleted_deliveries"])
			fmt.Printf("Deleted logs:       %v\n", res["deleted_logs"])
		}
		return nil
	},
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("retention-days", 30, "delete rows older than this many days")
}
