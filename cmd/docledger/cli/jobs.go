package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/docledger/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerOptions scopes a manually triggered job.
type TriggerOptions struct {
	CompanyIDs []int64
	AsOf       time.Time
	Repair     bool
}

// Trigger enqueues a maintenance job by task name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskLoyaltyExpire:
		task, err = jobs.NewLoyaltyExpireTask(jobs.LoyaltyExpirePayload{CompanyIDs: opts.CompanyIDs, AsOf: opts.AsOf})
	case jobs.TaskStockVerify:
		task, err = jobs.NewStockVerifyTask(jobs.StockVerifyPayload{CompanyIDs: opts.CompanyIDs, Repair: opts.Repair})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueues reports the metrics of every queue the worker serves.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueDefault, jobs.QueueMaintenance} {
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
		}
		out = append(out, stats)
	}
	return out, nil
}

// NewJobsCommand builds the `jobs` command tree. open is called lazily so
// help output never needs Redis.
func NewJobsCommand(open func() (*JobsCLI, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var companies []int64
	var asOf string
	var repair bool
	trigger := &cobra.Command{
		Use:   "trigger <" + jobs.TaskLoyaltyExpire + "|" + jobs.TaskStockVerify + ">",
		Short: "Enqueue a maintenance job now",
		Example: `  docledger jobs trigger loyalty:expire --company 3 --as-of 2026-10-01
  docledger jobs trigger inventory:verify --repair`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := TriggerOptions{CompanyIDs: companies, Repair: repair}
			if asOf != "" {
				parsed, err := time.Parse("2006-01-02", asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of, use YYYY-MM-DD: %w", err)
				}
				opts.AsOf = parsed.UTC()
			}
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().Int64SliceVar(&companies, "company", nil, "restrict to these company ids (repeatable)")
	trigger.Flags().StringVar(&asOf, "as-of", "", "expiration cut-off date (loyalty:expire only)")
	trigger.Flags().BoolVar(&repair, "repair", false, "reset drifted stock from the ledger (inventory:verify only)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			queues, err := c.InspectQueues()
			if err != nil {
				return err
			}
			writeStats(cmd.OutOrStdout(), queues)
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func writeStats(w io.Writer, queues []QueueStats) {
	fmt.Fprintf(w, "%-12s %8s %8s %10s %6s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY")
	for _, q := range queues {
		fmt.Fprintf(w, "%-12s %8d %8d %10d %6d\n", strings.ToLower(q.Queue), q.Pending, q.Active, q.Scheduled, q.Retry)
	}
}
