package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
)

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	deadCmd := &cobra.Command{
		Use:   "dead-letter",
		Short: "Manage jobs that exhausted their retries",
	}

	var limit int
	requeue := &cobra.Command{
		Use:   "requeue <queue>",
		Short: "Move dead-lettered jobs back onto their work queue",
		Long: "Move dead-lettered jobs back onto their work queue with a fresh attempt count.\n" +
			"The queue may be given as the work queue (image-processing) or its dead-letter queue.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.MemoryBroker() {
				return errors.New("dead-letter requeue needs an AMQP broker; the in-process broker is private to the daemon")
			}
			b := broker.FromConfig(cfg, logging.NewNop())
			defer b.Close()
			return requeueDeadLetters(cmd, b, args[0], limit)
		},
	}
	requeue.Flags().IntVar(&limit, "limit", 0, "Maximum jobs to move (0 moves all)")

	deadCmd.AddCommand(requeue)
	return deadCmd
}

func requeueDeadLetters(cmd *cobra.Command, b broker.Broker, queue string, limit int) error {
	moved, err := jobs.RequeueDeadLetters(cmd.Context(), b, queue, limit)
	out := cmd.OutOrStdout()
	if moved > 0 || err == nil {
		fmt.Fprintf(out, "Requeued %d job(s)\n", moved)
	}
	return err
}
