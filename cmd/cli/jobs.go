package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/launcher"
	"github.com/phototag/catalog-service/internal/workers"
	"github.com/spf13/cobra"
)

var (
	ownerID   int64
	stopPurge bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue new files from the content directory and import them",
	Long: `Create an import job for the owner, queue every file of the content
directory that is not queued yet, and run the worker in the foreground until
the queue is drained or the job is stopped.`,
	Example: `  catalog import --user 7`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLaunch(cmd.Context(), jobs.KindImport)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update",
	Short:   "Queue metadata records and apply them to the catalog",
	Example: `  catalog update --user 7`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLaunch(cmd.Context(), jobs.KindUpdate)
	},
}

var workCmd = &cobra.Command{
	Use:   "work <job_id> [actor_id]",
	Short: "Run the worker of an existing job in the foreground",
	Long: `Run the worker loop for a job that was already launched, for example
to resume a job whose worker died. The job is completed when the worker exits
normally; an interrupt leaves it resumable.`,
	Example: `  catalog work 42
  catalog work 42 7`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWork,
}

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show a job and its queue counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var stopCmd = &cobra.Command{
	Use:   "stop <job_id>",
	Short: "Request a job to stop",
	Long: `Flag the job stopped. Its worker exits at the next checkpoint. With
--purge the job's queue rows are deleted as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(importCmd, updateCmd, workCmd, statusCmd, stopCmd)

	for _, c := range []*cobra.Command{importCmd, updateCmd} {
		c.Flags().Int64Var(&ownerID, "user", 0, "Owner id of the job (required)")
		_ = c.MarkFlagRequired("user")
	}
	stopCmd.Flags().BoolVar(&stopPurge, "purge", false, "Delete the job's queue rows")
}

func runLaunch(ctx context.Context, kind jobs.Kind) error {
	res, err := catApp.Launcher.Launch(ctx, kind, ownerID)
	var conflict *launcher.ConflictError
	switch {
	case errors.As(err, &conflict):
		return fmt.Errorf("owner %d already has %s job %d (%s)", ownerID, conflict.Job.Kind, conflict.Job.ID, conflict.Job.Status)
	case errors.Is(err, launcher.ErrNothingQueued):
		fmt.Printf("Nothing new to queue; job %d completed\n", res.JobID)
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("Job %d: queued %d item(s)\n", res.JobID, res.Queued)
	return waitForWorker(ctx, res.JobID)
}

func waitForWorker(ctx context.Context, jobID int64) error {
	start := time.Now()
	reason, err := catApp.Supervisor.Wait(ctx, jobID)
	if errors.Is(err, workers.ErrNotRunning) {
		return nil
	}
	if ctx.Err() != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if serr := catApp.Supervisor.Shutdown(shutdownCtx); serr != nil {
			logger.Error().Err(serr).Msg("Worker did not stop in time")
		}
		fmt.Printf("Interrupted; job %d left resumable (catalog work %d)\n", jobID, jobID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Job %d finished: %s (%s)\n", jobID, reason, time.Since(start).Round(time.Millisecond))
	return printStatus(context.Background(), jobID)
}

func runWork(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	log := logger.With().Int64("job_id", jobID).Logger()
	if len(args) > 1 {
		log = log.With().Str("actor_id", args[1]).Logger()
	}

	job, err := catApp.Ledger.Get(ctx, jobID)
	if err != nil {
		return err
	}
	log.Info().Str("job_kind", string(job.Kind)).Str("job_status", string(job.Status)).Msg("Running worker")

	reason, err := catApp.Supervisor.Run(ctx, *job)
	if err != nil {
		return err
	}
	fmt.Printf("Job %d worker exited: %s\n", jobID, reason)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	return printStatus(cmd.Context(), jobID)
}

func printStatus(ctx context.Context, jobID int64) error {
	job, err := catApp.Ledger.Get(ctx, jobID)
	if err != nil {
		return err
	}
	stats, err := catApp.Queue.Stats(ctx, jobID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "JOB\tKIND\tOWNER\tSTATUS\tTOTAL\tPENDING\tPROCESSING\tDONE\tFAILED\n")
	fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%d\n",
		job.ID, job.Kind, job.OwnerID, job.Status,
		stats.Total, stats.Pending, stats.Processing, stats.Done, stats.Failed)
	if stats.ProcessingPayload != nil {
		fmt.Fprintf(w, "\nprocessing: %s\n", *stats.ProcessingPayload)
	}
	return w.Flush()
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	job, err := catApp.Ledger.Stop(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Printf("Job %d: %s\n", job.ID, job.Status)

	if stopPurge {
		n, err := catApp.Queue.PurgeJob(ctx, jobID)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d queue row(s)\n", n)
	}
	return nil
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id: %q", s)
	}
	return id, nil
}
