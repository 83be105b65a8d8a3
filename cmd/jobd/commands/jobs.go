package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/client"
	"github.com/teranos/jobd/detect"
	"github.com/teranos/jobd/errors"
)

// JobsCmd groups the job management commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Submit, inspect and cancel jobs",
	Long: `Manage jobs on a running jobd server.

Job management commands:
  jobd jobs submit <image>     # Submit a detect-objects job
  jobd jobs ls                 # List jobs
  jobd jobs status <id>        # Show job details
  jobd jobs result <id>        # Print a finished job's result
  jobd jobs cancel <id>        # Cancel a pending or running job
  jobd jobs wait <id>          # Block until a job finishes
  jobd jobs watch              # Stream status changes live`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit [image]",
	Short: "Submit a job",
	Long: `Submit a job. With an image argument, the file is sent as a
detect-objects payload. --payload supplies (or extends) the raw JSON payload
for other tasks.

Resubmitting with the same --idempotency-key returns the original job.

Examples:
  jobd jobs submit photo.png
  jobd jobs submit photo.png --min-score 0.5 --wait
  jobd jobs submit --task echo --payload '{"note":"hi"}' --idempotency-key k1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobsSubmit,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	Long: `List jobs newest first, optionally filtered by status.

Status filters: pending, running, done, failed, timeout, canceled

Examples:
  jobd jobs ls
  jobd jobs ls --status failed
  jobd jobs ls --limit 50 --all`,
	RunE: runJobsLs,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show status of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		status, err := c.Status(cmd.Context(), args[0])
		if err != nil {
			return describeAPIError(err)
		}
		printJob(status.JobView)
		return nil
	},
}

var jobsResultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print the result of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		raw, err := c.Result(cmd.Context(), args[0])
		if err != nil {
			return describeAPIError(err)
		}
		return printJSON(raw)
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		status, err := c.Cancel(cmd.Context(), args[0])
		if err != nil {
			return describeAPIError(err)
		}
		pterm.Success.Printf("Job %s is %s\n", status.ID, colorStatus(status.Status))
		return nil
	},
}

var jobsWaitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Wait until a job finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		return waitForJob(cmd, c, args[0])
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream job status changes",
	Long:  "Connect to the server's job stream and print every status change until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		pterm.Info.Println("Watching job stream (Ctrl+C to stop)")
		return c.Watch(cmd.Context(), func(job async.JobView) error {
			line := fmt.Sprintf("%s %s %s", pterm.Gray(time.Now().Format("15:04:05")), job.ID, colorStatus(job.Status))
			if job.Error != "" {
				line += " " + pterm.Red(job.Error)
			}
			pterm.Println(line)
			return nil
		})
	},
}

func init() {
	jobsSubmitCmd.Flags().String("task", detect.TaskName, "Task to run")
	jobsSubmitCmd.Flags().String("idempotency-key", "", "Deduplicate resubmissions with this key")
	jobsSubmitCmd.Flags().String("payload", "", "Raw JSON object payload")
	jobsSubmitCmd.Flags().Float64("min-score", 0, "Minimum detection score (detect-objects)")
	jobsSubmitCmd.Flags().Bool("wait", false, "Wait for the job to finish and print its result")

	jobsLsCmd.Flags().String("status", "", "Filter by status")
	jobsLsCmd.Flags().Int("limit", 0, "Page size, 1-100 (default: server setting)")
	jobsLsCmd.Flags().String("cursor", "", "Continue from a previous page's cursor")
	jobsLsCmd.Flags().Bool("all", false, "Follow cursors until every page is listed")

	for _, c := range []*cobra.Command{jobsSubmitCmd, jobsWaitCmd} {
		c.Flags().Duration("interval", 250*time.Millisecond, "Polling interval while waiting")
		c.Flags().Duration("timeout", time.Minute, "Give up waiting after this long")
	}

	JobsCmd.AddCommand(jobsSubmitCmd)
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatusCmd)
	JobsCmd.AddCommand(jobsResultCmd)
	JobsCmd.AddCommand(jobsCancelCmd)
	JobsCmd.AddCommand(jobsWaitCmd)
	JobsCmd.AddCommand(jobsWatchCmd)
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	task, _ := cmd.Flags().GetString("task")
	key, _ := cmd.Flags().GetString("idempotency-key")
	rawPayload, _ := cmd.Flags().GetString("payload")
	wait, _ := cmd.Flags().GetBool("wait")

	payload := map[string]interface{}{}
	if rawPayload != "" {
		if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
			return errors.Wrap(err, "--payload must be a JSON object")
		}
	}
	if len(args) == 1 {
		image, err := readImage(args[0])
		if err != nil {
			return err
		}
		payload["imageBase64"] = image
	}
	if cmd.Flags().Changed("min-score") {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		payload["minScore"] = minScore
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	receipt, err := c.Submit(cmd.Context(), client.SubmitRequest{
		Task:           task,
		IdempotencyKey: key,
		Payload:        payload,
	})
	if err != nil {
		return describeAPIError(err)
	}

	pterm.Success.Printf("Submitted job %s (%s)\n", pterm.LightCyan(receipt.JobID), colorStatus(receipt.Status))
	if !wait {
		return nil
	}
	return waitForJob(cmd, c, receipt.JobID)
}

// waitForJob polls with a spinner and prints the result once the job ends
func waitForJob(cmd *cobra.Command, c *client.Client, jobID string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	spinner, _ := pterm.DefaultSpinner.Start("Waiting for job " + jobID)
	status, err := c.Wait(ctx, jobID, interval)
	if err != nil {
		if spinner != nil {
			spinner.Fail("Stopped waiting for job " + jobID)
		}
		return describeAPIError(err)
	}
	if spinner != nil {
		if status.Status == async.JobStatusDone {
			spinner.Success("Job " + jobID + " is done")
		} else {
			spinner.Warning("Job " + jobID + " ended " + string(status.Status))
		}
	}

	printJob(status.JobView)
	if status.Status != async.JobStatusDone {
		return errors.Newf("job %s ended %s", jobID, status.Status)
	}

	raw, err := c.Result(cmd.Context(), jobID)
	if err != nil {
		return describeAPIError(err)
	}
	return printJSON(raw)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")
	all, _ := cmd.Flags().GetBool("all")

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	var jobs []async.JobView
	var next *string
	for {
		page, err := c.List(cmd.Context(), client.ListParams{Status: status, Limit: limit, Cursor: cursor})
		if err != nil {
			return describeAPIError(err)
		}
		jobs = append(jobs, page.Items...)
		next = page.NextCursor
		if !all || next == nil {
			break
		}
		cursor = *next
	}

	if len(jobs) == 0 {
		pterm.Info.Println("No jobs found")
		return nil
	}
	if err := renderJobs(jobs); err != nil {
		return err
	}

	pterm.Printf("\nTotal: %d job(s)\n", len(jobs))
	if next != nil {
		pterm.Printf("More: jobd jobs ls --cursor %s\n", *next)
	}
	return nil
}

// readImage loads a file as a data URL
func readImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read image %s", path)
	}
	return imageDataURL(data), nil
}

// describeAPIError appends the server's error details to API errors
func describeAPIError(err error) error {
	apiErr, ok := client.AsAPIError(err)
	if !ok || len(apiErr.Details) == 0 {
		return err
	}
	details, _ := json.Marshal(apiErr.Details)
	return fmt.Errorf("%w\n  details: %s", err, details)
}
