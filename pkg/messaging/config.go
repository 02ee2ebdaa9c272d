package messaging

import "time"

// RetryConfig mirrors resilience.RetryConfig's env-tagged shape for the
// messaging layer's config schema.
type RetryConfig struct {
	MaxRetries      int      `env:"MESSAGING_RETRY_MAX" env-default:"3" validate:"gte=0"`
	InitialDelayMs  int      `env:"MESSAGING_RETRY_INITIAL_DELAY_MS" env-default:"100" validate:"gte=0"`
	MaxDelayMs      int      `env:"MESSAGING_RETRY_MAX_DELAY_MS" env-default:"10000" validate:"gte=0"`
	Multiplier      float64  `env:"MESSAGING_RETRY_MULTIPLIER" env-default:"2" validate:"gt=0"`
	Jitter          bool     `env:"MESSAGING_RETRY_JITTER" env-default:"true"`
	RetryableErrors []string `env:"MESSAGING_RETRY_RETRYABLE_ERRORS" env-separator:","`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig's env-tagged
// shape.
type CircuitBreakerConfig struct {
	Enabled          bool `env:"MESSAGING_CB_ENABLED" env-default:"false"`
	FailureThreshold int  `env:"MESSAGING_CB_FAILURE_THRESHOLD" env-default:"5" validate:"gt=0"`
	FailureWindowMs  int  `env:"MESSAGING_CB_FAILURE_WINDOW_MS" env-default:"60000" validate:"gt=0"`
	ResetTimeoutMs   int  `env:"MESSAGING_CB_RESET_TIMEOUT_MS" env-default:"30000" validate:"gt=0"`
	SuccessThreshold int  `env:"MESSAGING_CB_SUCCESS_THRESHOLD" env-default:"2" validate:"gt=0"`
}

// DLQConfig configures dead-letter routing.
type DLQConfig struct {
	Enabled             bool   `env:"MESSAGING_DLQ_ENABLED" env-default:"false"`
	Destination         string `env:"MESSAGING_DLQ_DESTINATION"`
	MaxDeliveryAttempts int    `env:"MESSAGING_DLQ_MAX_ATTEMPTS" env-default:"3" validate:"gt=0"`
	IncludeError        bool   `env:"MESSAGING_DLQ_INCLUDE_ERROR" env-default:"true"`
}

// LoggingConfig configures the adapter's logging behavior.
type LoggingConfig struct {
	Enabled bool   `env:"MESSAGING_LOG_ENABLED" env-default:"true"`
	Level   string `env:"MESSAGING_LOG_LEVEL" env-default:"info"`
}

// Config is the base configuration shared by every adapter. Adapter
// packages embed this alongside their own backend-specific fields (broker
// addresses, credentials, topic names).
type Config struct {
	ClientID          string               `env:"MESSAGING_CLIENT_ID"`
	Retry             RetryConfig
	CircuitBreaker    CircuitBreakerConfig
	DeadLetterQueue   DLQConfig
	Logging           LoggingConfig
	ConnectionTimeout time.Duration `env:"MESSAGING_CONNECT_TIMEOUT" env-default:"10s"`
	RequestTimeout    time.Duration `env:"MESSAGING_REQUEST_TIMEOUT" env-default:"5s"`
}

// DefaultConfig returns a Config populated with the spec's documented
// defaults, for adapters constructed programmatically rather than through
// pkg/config.Load.
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelayMs: 100,
			MaxDelayMs:     10000,
			Multiplier:     2,
			Jitter:         true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			FailureWindowMs:  60000,
			ResetTimeoutMs:   30000,
			SuccessThreshold: 2,
		},
		DeadLetterQueue: DLQConfig{
			MaxDeliveryAttempts: 3,
			IncludeError:        true,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    5 * time.Second,
	}
}
