package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
)

var (
	publishQueue    string
	publishPayload  string
	publishPriority int
)

var publishCmd = &cobra.Command{
	Use:   "publish [task_type]",
	Short: "Enqueue a task for the workers",
	Args:  cobra.ExactArgs(1),
	Run:   runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishQueue, "queue", broker.TaskQueue, "destination queue")
	publishCmd.Flags().StringVar(&publishPayload, "payload", "{}", "task payload as JSON")
	publishCmd.Flags().IntVar(&publishPriority, "priority", 0, "priority > 0 jumps the queue")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	var payload map[string]any
	if err := json.Unmarshal([]byte(publishPayload), &payload); err != nil {
		fmt.Printf("Invalid payload JSON: %v\n", err)
		os.Exit(1)
	}

	task := domain.Task{
		TaskID:    uuid.New().String(),
		Type:      args[0],
		Payload:   payload,
		Priority:  publishPriority,
		CreatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(&task)
	if err != nil {
		slog.Error("Failed to encode task", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := broker.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Publish(ctx, publishQueue, body, publishPriority); err != nil {
		slog.Error("Failed to publish task", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Published task %s (type %s) to %s\n", task.TaskID, task.Type, publishQueue)
}
