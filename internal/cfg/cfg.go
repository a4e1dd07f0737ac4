package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds           int
	ShutdownBudgetSeconds  int
	APIPort                int
	DatabaseURL            string
	RedisURL               string
	DetectorEndpoint       string
	DetectorTimeoutSeconds int
	JobTTLSeconds          int
	MonitorIntervalSeconds int
	APIToken               string
	SlackWebhookURL        string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis connection URL for the job store (empty = in-memory job store)")
	fs.StringVar(&c.DetectorEndpoint, "detector-endpoint", "", "change detection service base URL (empty = simulated detector)")
	fs.IntVar(&c.DetectorTimeoutSeconds, "detector-timeout-seconds", 120, "per-call detector timeout in seconds (1..3600)")
	fs.IntVar(&c.JobTTLSeconds, "job-ttl-seconds", 3600, "seconds a finished detection job stays pollable (60..86400)")
	fs.IntVar(&c.MonitorIntervalSeconds, "monitor-interval-seconds", 0, "interval between scheduled batch runs in seconds (0 = disabled)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no gate)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for alert notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Detector calls need a finite deadline or failed runs hang forever
	if c.DetectorTimeoutSeconds <= 0 || c.DetectorTimeoutSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid DETECTOR_TIMEOUT_SECONDS %d (must be 1..3600)", c.DetectorTimeoutSeconds))
	}

	// Jobs must outlive at least one polling cycle but not pile up forever
	if c.JobTTLSeconds < 60 || c.JobTTLSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid JOB_TTL_SECONDS %d (must be 60..86400)", c.JobTTLSeconds))
	}

	if c.MonitorIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid MONITOR_INTERVAL_SECONDS %d (must be >= 0, 0 disables the monitor loop)", c.MonitorIntervalSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
