package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	BrokerURL             string
	BrokerConnectAttempts int
	BrokerConnectBackoff  int
	GeneratorMinSeconds   int
	GeneratorMaxSeconds   int
	AssignSweepSeconds    int
	APIToken              string
	NotifyWebhookURL      string
	OncallRosterPath      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.BrokerURL, "broker-url", "", "NATS broker URL (empty = embedded broker)")
	fs.IntVar(&c.BrokerConnectAttempts, "broker-connect-attempts", 5, "broker connection attempts before fatal startup failure (1..20)")
	fs.IntVar(&c.BrokerConnectBackoff, "broker-connect-backoff-seconds", 5, "fixed seconds between broker connection attempts (1..60)")
	fs.IntVar(&c.GeneratorMinSeconds, "generator-min-seconds", 10, "minimum seconds between generated alerts (0 disables the generator)")
	fs.IntVar(&c.GeneratorMaxSeconds, "generator-max-seconds", 30, "maximum seconds between generated alerts")
	fs.IntVar(&c.AssignSweepSeconds, "assign-sweep-seconds", 30, "seconds between assignment retry sweeps over unassigned incidents (1..3600)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on mutating endpoints (empty = no auth)")
	fs.StringVar(&c.NotifyWebhookURL, "notify-webhook-url", "", "webhook URL for responder notifications (empty = record only)")
	fs.StringVar(&c.OncallRosterPath, "oncall-roster", "", "path to a JSON on-call roster file (empty = built-in hospital roster)")
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

	if c.BrokerConnectAttempts < 1 || c.BrokerConnectAttempts > 20 {
		errs = append(errs, fmt.Errorf("invalid BROKER_CONNECT_ATTEMPTS %d (must be 1..20)", c.BrokerConnectAttempts))
	}
	if c.BrokerConnectBackoff < 1 || c.BrokerConnectBackoff > 60 {
		errs = append(errs, fmt.Errorf("invalid BROKER_CONNECT_BACKOFF_SECONDS %d (must be 1..60)", c.BrokerConnectBackoff))
	}

	// Generator interval: zero minimum disables periodic emission,
	// anything else must form a sane [min, max] range
	if c.GeneratorMinSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid GENERATOR_MIN_SECONDS %d (must be >= 0)", c.GeneratorMinSeconds))
	}
	if c.GeneratorMinSeconds > 0 && c.GeneratorMaxSeconds < c.GeneratorMinSeconds {
		errs = append(errs, fmt.Errorf("GENERATOR_MAX_SECONDS %d must be >= GENERATOR_MIN_SECONDS %d", c.GeneratorMaxSeconds, c.GeneratorMinSeconds))
	}

	if c.AssignSweepSeconds < 1 || c.AssignSweepSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid ASSIGN_SWEEP_SECONDS %d (must be 1..3600)", c.AssignSweepSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
