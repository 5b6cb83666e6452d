package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/foreman/internal/control"
	"github.com/vietddude/foreman/internal/core/domain"
)

var (
	workerRole string
	workerID   string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single task worker process",
	Run:   runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerRole, "role", "task", "worker role (task, result, dialog)")
	workerCmd.Flags().StringVar(&workerID, "id", "", "stable worker id (default is a fresh UUID)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	w, err := control.NewWorker(cfg, domain.WorkerRole(workerRole), workerID)
	if err != nil {
		slog.Error("Failed to initialize worker", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = w.Close()
	}()

	// Cancellation stops the consume loop after the in-flight message.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Worker stopped gracefully")
}
