package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <query-id>",
		Short: "Report a query's lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp queryStatusResponse
			if err := apiGet(fmt.Sprintf("/queries/%s/status", args[0]), &resp); err != nil {
				return err
			}
			fmt.Printf("state: %s\n", resp.State)
			if resp.Error != "" {
				fmt.Printf("error: %s\n", resp.Error)
			}
			if !resp.Started.IsZero() {
				fmt.Printf("started: %s\n", resp.Started.Format(time.RFC3339))
			}
			if !resp.Running.IsZero() {
				fmt.Printf("running: %s\n", resp.Running.Format(time.RFC3339))
			}
			if !resp.Stopped.IsZero() {
				fmt.Printf("stopped: %s\n", resp.Stopped.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "stop <query-id>",
		Short: "Request termination of a running query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := "graceful"
			if hard {
				mode = "hard"
			}
			path := fmt.Sprintf("/queries/%s/stop?mode=%s", args[0], mode)
			var resp map[string]string
			if err := apiPost(path, &resp); err != nil {
				return err
			}
			fmt.Println(resp["status"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "Stop immediately instead of draining in-flight data")
	return cmd
}

func destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <query-id>",
		Short: "Release a terminated query's resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := apiDelete(fmt.Sprintf("/queries/%s", args[0]), &resp); err != nil {
				return err
			}
			fmt.Println(resp["status"])
			return nil
		},
	}
}

func apiGet(path string, out any) error {
	return apiDo(http.MethodGet, path, out)
}

func apiPost(path string, out any) error {
	return apiDo(http.MethodPost, path, out)
}

func apiDelete(path string, out any) error {
	return apiDo(http.MethodDelete, path, out)
}

func apiDo(method, path string, out any) error {
	req, err := http.NewRequest(method, apiAddr+path, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling worker api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("worker api: %s", apiErr.Error)
		}
		return fmt.Errorf("worker api: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
