package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fleetcore/dispatchd/core/model"
)

var (
	submitAPIAddr      string
	submitAPIToken     string
	submitCleanStart   string
	submitTaskPriority string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a clean task to a running dispatcher node",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitAPIAddr, "api", "http://localhost:8080", "dispatcher API base address")
	submitCmd.Flags().StringVar(&submitAPIToken, "token", "", "bearer token, if the API requires one")
	submitCmd.Flags().StringVar(&submitCleanStart, "start-waypoint", "", "start waypoint for the clean task")
	submitCmd.Flags().StringVar(&submitTaskPriority, "priority", "low", "task priority: low or high")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if submitCleanStart == "" {
		return fmt.Errorf("--start-waypoint is required")
	}
	priority := model.PriorityLow
	if submitTaskPriority == "high" {
		priority = model.PriorityHigh
	}

	payload := struct {
		Description model.TaskDescription `json:"description"`
	}{
		Description: model.TaskDescription{
			Type:     model.TaskClean,
			Priority: priority,
			Clean:    &model.CleanPayload{StartWaypoint: submitCleanStart},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, submitAPIAddr+"/api/dispatch/tasks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if submitAPIToken != "" {
		req.Header.Set("Authorization", "Bearer "+submitAPIToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit task: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("submit task: server returned %d: %s", resp.StatusCode, respBody)
	}

	var out struct {
		TaskId model.TaskId `json:"task_id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.TaskId)
	return nil
}
