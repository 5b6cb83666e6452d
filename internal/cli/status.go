package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depths and recent failure counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	client, err := broker.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	queues := []string{broker.TaskQueue, broker.ResultQueue, broker.DialogTaskQueue, broker.DialogResponseQueue}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "QUEUE\tDEPTH\tDEAD")

	for _, queue := range queues {
		depth, err := client.Depth(ctx, queue)
		if err != nil {
			slog.Error("Failed to read queue depth", "queue", queue, "error", err)
			continue
		}
		dead, _ := client.DeadDepth(ctx, queue)
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", queue, depth, dead)
	}
	_ = w.Flush()

	if cfg.Database.URL == "" {
		return
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	counts, err := postgres.NewAttemptArchive(db).CountsByKind(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		slog.Error("Failed to count failures", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(fw, "ERROR KIND\tFAILURES (24H)")
	for kind, count := range counts {
		_, _ = fmt.Fprintf(fw, "%s\t%d\n", kind, count)
	}
	_ = fw.Flush()
}
