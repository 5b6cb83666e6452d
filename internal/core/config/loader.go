package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Supervisor.ReconcileInterval == 0 {
		cfg.Supervisor.ReconcileInterval = 30 * time.Second
	}
	if cfg.Supervisor.GracePeriod == 0 {
		cfg.Supervisor.GracePeriod = 10 * time.Second
	}
	if cfg.Supervisor.MaxSystemLoadPercent == 0 {
		cfg.Supervisor.MaxSystemLoadPercent = 85
	}
	if cfg.Supervisor.LogDir == "" {
		cfg.Supervisor.LogDir = "logs"
	}
	if cfg.Router.ResultQueue == "" {
		cfg.Router.ResultQueue = broker.ResultQueue
	}
	if cfg.Router.SummaryInterval == 0 {
		cfg.Router.SummaryInterval = time.Hour
	}
	if cfg.Router.PreviewLimit == 0 {
		cfg.Router.PreviewLimit = 400
	}
	if cfg.Archive.RetentionPeriod == 0 {
		cfg.Archive.RetentionPeriod = 7 * 24 * time.Hour
	}

	for i := range cfg.Workers {
		w := &cfg.Workers[i]
		if w.Queue == "" {
			if w.Role == domain.RoleDialog {
				w.Queue = broker.DialogTaskQueue
			} else {
				w.Queue = broker.TaskQueue
			}
		}
		if w.ResultQueue == "" {
			if w.Role == domain.RoleDialog {
				w.ResultQueue = broker.DialogResponseQueue
			} else {
				w.ResultQueue = cfg.Router.ResultQueue
			}
		}
		if w.Target == 0 {
			w.Target = 1
		}
	}

	return &cfg, nil
}
