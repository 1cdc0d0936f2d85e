package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume change events into the vector index",
	Long: `Connects to Kafka, buffers book and review change events and flushes
them into the vector index when the batch fills or the flush timeout
passes. Runs until interrupted; an in-flight flush completes first.`,
	Annotations: map[string]string{"banner": "true"},
	Args:        cobra.NoArgs,
	RunE:        runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, _ []string) error {
	if consumerService == nil {
		return fmt.Errorf("consumer: %w", errNotConfigured)
	}

	ctx := commandContext(cmd)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("Shutdown signal received, stopping consumer")
			consumerService.Stop()
		case <-done:
		}
	}()

	cmd.Println("Consuming change events. Press Ctrl+C to stop.")

	err := consumerService.Run(ctx)
	if err != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("consumer failed: %w", err)
	}

	printConsumerStats(cmd, consumerService.Stats())
	return nil
}

func printConsumerStats(cmd *cobra.Command, s domain.ConsumerStats) {
	cmd.Println("Consumer stopped.")
	cmd.Printf("  Events:   %d seen, %d skipped\n", s.EventsSeen, s.EventsSkipped)
	cmd.Printf("  Flushes:  %d (%d failed)\n", s.Flushes, s.FailedFlushes)
	cmd.Printf("  Chunks:   %d written, %d failed\n", s.Indexed.Written, s.Indexed.Failed)
}
