package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/research-orchestrator/internal/actions"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/output"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// NewJobCmd creates the job command group: intake, inspection, and the
// operator control actions (clarify/pause/resume/cancel) that set
// Job.ControlRequested for the pipeline executor to observe (spec §4.1, §7).
func NewJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create and manage deep research jobs",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newJobCreateCmd())
	cmd.AddCommand(newJobGetCmd())
	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobClarifyCmd())
	cmd.AddCommand(newJobPauseCmd())
	cmd.AddCommand(newJobResumeCmd())
	cmd.AddCommand(newJobCancelCmd())
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new research question",
		RunE: func(cmd *cobra.Command, args []string) error {
			question, _ := cmd.Flags().GetString("question")
			if question == "" {
				return cmdErr(errors.New("--question is required"))
			}
			requestID, err := requireRequestID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			depth, _ := cmd.Flags().GetString("depth")
			maxSteps, _ := cmd.Flags().GetInt("max-steps")
			tags, _ := cmd.Flags().GetStringSlice("tags")
			metaPairs, _ := cmd.Flags().GetStringToString("meta")

			options := models.JobOptions{Depth: depth, MaxSteps: maxSteps, Tags: tags}

			var job *models.Job
			if err := withDB(func(db *DB) error {
				j, err := actions.JobCreateIdempotent(db, requestID, question, options, metaPairs)
				if err != nil {
					return err
				}
				job = j
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(job)
		},
	}

	cmd.Flags().String("question", "", "Research question (required)")
	cmd.Flags().String("depth", "", "Research depth hint, e.g. shallow|standard|deep")
	cmd.Flags().Int("max-steps", 0, "Override the planner's step budget (0 = use server default)")
	cmd.Flags().StringSlice("tags", nil, "Freeform tags for this job")
	cmd.Flags().StringToString("meta", nil, "Intake metadata key=value pairs (time_horizon, region_focus, data_modalities, integration_targets, quality_constraints)")

	cmd.Annotations = map[string]string{"mutates": "true", "request_id": "true"}
	return cmd
}

func newJobGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a job's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, _ := cmd.Flags().GetString("id")
			if jobID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var job *models.Job
			if err := withDB(func(db *DB) error {
				j, err := store.GetJob(db, jobID)
				if err != nil {
					return err
				}
				job = j
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(job)
		},
	}
	cmd.Flags().String("id", "", "Job ID (required)")
	return cmd
}

func newJobListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFilter, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			var jobs []*models.Job
			if err := withDB(func(db *DB) error {
				j, err := store.ListJobs(db, models.JobStatus(statusFilter), limit)
				if err != nil {
					return err
				}
				jobs = j
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int            `json:"count"`
				Jobs  []*models.Job `json:"jobs"`
			}
			return output.PrintSuccess(resp{Count: len(jobs), Jobs: jobs})
		},
	}
	cmd.Flags().String("status", "", "Filter by status: queued|running|paused|cancelled|completed|error|clarification_required")
	cmd.Flags().Int("limit", 100, "Maximum jobs to return")
	return cmd
}

func newJobClarifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clarify",
		Short: "Answer clarification keys for a job awaiting intake (spec §6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, _ := cmd.Flags().GetString("id")
			if jobID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			answerPairs, _ := cmd.Flags().GetStringToString("answer")
			if len(answerPairs) == 0 {
				return cmdErr(errors.New("at least one --answer key=value is required"))
			}
			requestID, err := requireRequestID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var job *models.Job
			if err := withDB(func(db *DB) error {
				j, err := actions.JobClarifyIdempotent(db, requestID, jobID, answerPairs)
				if err != nil {
					return err
				}
				job = j
				return nil
			}); err != nil {
				return err
			}

			var stillMissing string
			if missing := models.MissingClarificationKeys(job.Metadata); len(missing) > 0 {
				stillMissing = strings.Join(missing, ",")
			}

			type resp struct {
				Job          *models.Job `json:"job"`
				StillMissing string      `json:"still_missing,omitempty"`
			}
			return output.PrintSuccess(resp{Job: job, StillMissing: stillMissing})
		},
	}
	cmd.Flags().String("id", "", "Job ID (required)")
	cmd.Flags().StringToString("answer", nil, "Clarification answer key=value, repeatable")
	cmd.Annotations = map[string]string{"mutates": "true", "request_id": "true"}
	return cmd
}

func newJobControlCmd(use, short string, kind models.ControlKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, _ := cmd.Flags().GetString("id")
			if jobID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			requestID, err := requireRequestID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var job *models.Job
			if err := withDB(func(db *DB) error {
				j, err := actions.JobControlIdempotent(db, requestID, jobID, kind)
				if err != nil {
					return err
				}
				job = j
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(job)
		},
	}
	cmd.Flags().String("id", "", "Job ID (required)")
	cmd.Annotations = map[string]string{"mutates": "true", "request_id": "true"}
	return cmd
}

func newJobPauseCmd() *cobra.Command {
	return newJobControlCmd("pause", "Request a running job pause at its next control check", models.ControlPaused)
}

func newJobCancelCmd() *cobra.Command {
	return newJobControlCmd("cancel", "Request a running job cancel at its next control check", models.ControlCancelled)
}

// newJobResumeCmd clears a paused job's control request and drops it back to
// queued so the Claimer can pick it up again (spec §4.1 Resume phase).
func newJobResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused job",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, _ := cmd.Flags().GetString("id")
			if jobID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			requestID, err := requireRequestID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var job *models.Job
			if err := withDB(func(db *DB) error {
				j, err := actions.JobResumeIdempotent(db, requestID, jobID)
				if err != nil {
					return err
				}
				job = j
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(job)
		},
	}
	cmd.Flags().String("id", "", "Job ID (required)")
	cmd.Annotations = map[string]string{"mutates": "true", "request_id": "true"}
	return cmd
}
