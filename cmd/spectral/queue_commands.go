package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"spectral/internal/workqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the enhancement work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueDeadCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearDeadCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enhancement messages in every state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q *workqueue.Queue) error {
				messages, err := q.List(cmd.Context(), limitFlag)
				if err != nil {
					return err
				}
				if len(messages) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
					return nil
				}
				rows := make([][]string, 0, len(messages))
				for _, msg := range messages {
					rows = append(rows, []string{
						strconv.FormatInt(msg.ID, 10),
						msg.Payload.EncounterID,
						string(msg.State),
						strconv.Itoa(msg.DeliveryCount),
						msg.CreatedAt.Local().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Encounter", "State", "Deliveries", "Created"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum rows")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q *workqueue.Queue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"ready", strconv.Itoa(stats.Ready)},
					{"leased", strconv.Itoa(stats.Leased)},
					{"dead", strconv.Itoa(stats.Dead)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Messages"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueDeadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered enhancement messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q *workqueue.Queue) error {
				dead, err := q.Dead(cmd.Context())
				if err != nil {
					return err
				}
				if len(dead) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dead-lettered messages.")
					return nil
				}
				rows := make([][]string, 0, len(dead))
				for _, msg := range dead {
					rows = append(rows, []string{
						strconv.FormatInt(msg.ID, 10),
						msg.Payload.EncounterID,
						strconv.Itoa(msg.DeliveryCount),
						msg.LastError,
						msg.CreatedAt.Local().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Encounter", "Deliveries", "Last Error", "Created"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [message-id...]",
		Short: "Return dead-lettered messages to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid message id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withQueue(func(q *workqueue.Queue) error {
				revived, err := q.RetryDead(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d message(s).\n", revived)
				return nil
			})
		},
	}
}

func newQueueClearDeadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-dead",
		Short: "Delete all dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q *workqueue.Queue) error {
				removed, err := q.ClearDead(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d message(s).\n", removed)
				return nil
			})
		},
	}
}
