package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattbonnell/tq"
	"github.com/mattbonnell/tq/internal/config"
	"github.com/spf13/cobra"
)

// newRoot constructs the tq command tree. Every subcommand opens the queue
// described by cfg.
func newRoot(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "tq",
		Short: "Durable task queue administration",
		Long: `tq operates a durable FIFO task queue backed by an SQL store.

Message Lifecycle:
  put → [get] → fetched → [done] → acked → (pruned)
                   ↓ [fail]
        retry with backoff, or deadletter once retries are exhausted
        deadletter → [requeue] → queue`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newPutCommand(cfg),
		newSizeCommand(cfg),
		newRequeueCommand(cfg),
		newPruneCommand(cfg),
		newWorkCommand(cfg),
	)
	return root
}

func openQueue(cfg *config.Config) (*tq.Queue, error) {
	q, err := tq.Open(cfg.Driver, cfg.DSN, cfg.QueueOptions()...)
	if err != nil {
		return nil, fmt.Errorf("error opening queue: %w", err)
	}
	return q, nil
}

func newPutCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Put a message onto the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, _ := cmd.Flags().GetString("task")
			payload, _ := cmd.Flags().GetString("payload")
			delay, _ := cmd.Flags().GetDuration("delay")
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("payload is not valid JSON: %s", payload)
			}
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			var opts []tq.MessageOption
			if delay > 0 {
				opts = append(opts, tq.WithETA(time.Now().Add(delay)))
			}
			m, err := tq.NewMessage(uuid.New(), task, json.RawMessage(payload), opts...)
			if err != nil {
				return err
			}
			id, err := q.Put(cmd.Context(), m, tq.RouteQueue)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().String("task", "", "Task name the worker dispatches on")
	cmd.Flags().String("payload", "null", "JSON payload")
	cmd.Flags().Duration("delay", 0, "Delay before the message becomes visible")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newSizeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size",
		Short: "Print the number of eligible messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			deadletter, _ := cmd.Flags().GetBool("deadletter")
			route := tq.RouteQueue
			if deadletter {
				route = tq.RouteDeadletter
			}
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			n, err := q.QSize(cmd.Context(), route)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().Bool("deadletter", false, "Count the deadletter relation instead")
	return cmd
}

func newRequeueCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Move every deadletter message back onto the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			n, err := q.RequeueDeadletter(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d messages\n", n)
			return nil
		},
	}
}

func newPruneCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete acknowledged messages beyond the retention limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			n, err := q.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d messages\n", n)
			return nil
		},
	}
}
