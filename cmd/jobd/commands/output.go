package commands

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/client"
	"github.com/teranos/jobd/internal/util"
)

// newClient builds an API client from --server, falling back to the
// configured listen address
func newClient(cmd *cobra.Command) (*client.Client, error) {
	baseURL, _ := cmd.Flags().GetString("server")
	if baseURL == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		baseURL = "http://" + net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Server.Port))
	}
	return client.New(baseURL)
}

// colorStatus renders a job status in its display colour
func colorStatus(status async.JobStatus) string {
	switch status {
	case async.JobStatusPending:
		return pterm.Gray(string(status))
	case async.JobStatusRunning:
		return pterm.LightCyan(string(status))
	case async.JobStatusDone:
		return pterm.Green(string(status))
	case async.JobStatusFailed:
		return pterm.Red(string(status))
	case async.JobStatusTimeout:
		return pterm.Yellow(string(status))
	case async.JobStatusCanceled:
		return pterm.LightMagenta(string(status))
	default:
		return string(status)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// printJob prints one job's details
func printJob(job async.JobView) {
	pterm.Printf("Job %s\n", pterm.LightCyan(job.ID))
	pterm.Printf("  Task:     %s\n", job.Task)
	pterm.Printf("  Status:   %s\n", colorStatus(job.Status))
	pterm.Printf("  Created:  %s\n", formatTime(&job.CreatedAt))
	pterm.Printf("  Started:  %s\n", formatTime(job.StartedAt))
	pterm.Printf("  Finished: %s\n", formatTime(job.FinishedAt))
	if job.StartedAt != nil && job.FinishedAt != nil {
		pterm.Printf("  Duration: %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
	if job.Error != "" {
		pterm.Printf("  Error:    %s\n", pterm.Red(job.Error))
	}
}

// renderJobs prints jobs as a table
func renderJobs(jobs []async.JobView) error {
	data := pterm.TableData{{"JOB ID", "STATUS", "TASK", "CREATED", "ERROR"}}
	for _, job := range jobs {
		data = append(data, []string{
			job.ID,
			colorStatus(job.Status),
			job.Task,
			formatTime(&job.CreatedAt),
			util.Truncate(job.Error, 40),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// printJSON pretty-prints v
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %w", err)
	}
	fmt.Println(strings.TrimSpace(string(data)))
	return nil
}
