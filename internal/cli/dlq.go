package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/foreman/internal/infra/broker"
)

var (
	dlqLimit   int64
	dlqRedrive bool
)

var dlqCmd = &cobra.Command{
	Use:   "dlq [queue]",
	Short: "Inspect or redrive a queue's dead letters",
	Args:  cobra.ExactArgs(1),
	Run:   runDLQ,
}

func init() {
	dlqCmd.Flags().Int64Var(&dlqLimit, "limit", 10, "max messages to show")
	dlqCmd.Flags().BoolVar(&dlqRedrive, "redrive", false, "move dead letters back onto the queue")
	rootCmd.AddCommand(dlqCmd)
}

func runDLQ(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	queue := args[0]

	ctx := context.Background()
	client, err := broker.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	if dlqRedrive {
		n, err := client.RedriveDead(ctx, queue)
		if err != nil {
			slog.Error("Failed to redrive dead letters", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Redrove %d dead letters onto %s\n", n, queue)
		return
	}

	total, err := client.DeadDepth(ctx, queue)
	if err != nil {
		slog.Error("Failed to read dead letter depth", "error", err)
		os.Exit(1)
	}

	bodies, err := client.DeadPeek(ctx, queue, dlqLimit)
	if err != nil {
		slog.Error("Failed to read dead letters", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%d dead letters on %s, showing %d:\n", total, queue, len(bodies))
	for i, body := range bodies {
		fmt.Printf("%3d: %s\n", i+1, body)
	}
}
