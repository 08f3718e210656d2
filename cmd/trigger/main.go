// Command trigger runs one pipeline job on a Flow API, for schedulers that
// live outside the worker (e.g. Kubernetes CronJobs).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"flow/internal/jobclient"
	"flow/internal/logger"

	"github.com/joho/godotenv"
)

// triggerConfig is read from the environment.
type triggerConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

func loadConfig(getenv func(string) string) (*triggerConfig, error) {
	cfg := &triggerConfig{
		APIURL: getenv("FLOW_API_URL"),
		APIKey: getenv("PIPELINE_API_KEY"),
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("FLOW_API_URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PIPELINE_API_KEY is required")
	}

	cfg.Timeout = 10 * time.Minute
	if raw := getenv("REQUEST_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", d)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := logger.Get()

	if len(args) != 1 || !jobclient.IsJob(args[0]) {
		fmt.Fprintf(os.Stderr, "usage: trigger <%s>\n", strings.Join(jobclient.Jobs, "|"))
		return 1
	}
	job := args[0]

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	client := jobclient.New(cfg.APIURL, cfg.APIKey, &http.Client{Timeout: cfg.Timeout})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	result, err := client.Run(ctx, job, time.Time{})
	if err != nil {
		log.Errorw("job trigger failed", "job", job, "error", err)
		return 1
	}

	log.Infow("job completed",
		"job", result.Job,
		"checked", result.Checked,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration.String(),
	)

	// Partial failure: the run finished but some items did not.
	if result.Failed > 0 {
		return 2
	}
	return 0
}
