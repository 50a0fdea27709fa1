package retry

import (
	"context"
	"fmt"
	"time"

	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries errors whose classification a session reset can cure
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	return errs.IsRecoverable(errs.TypeOf(err))
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		delay := cfg.Backoff.NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := Wait(cfg.Context, delay); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
					"attempt": attempt,
					"reason":  err.Error(),
				})
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// sessionRecoveryDelay spaces out replays so a flapping server is not
// hammered. The attempt count is intentionally unbounded: the run is expected
// to survive days of intermittent expiry.
var sessionRecoveryDelay = &ConstantBackoff{Delay: 2 * time.Second}

// WithSessionRecovery executes op, and on any recoverable failure (session
// expiry, transport error, extraction drift) calls reset and replays op from
// its start. Replay is safe because every navigation operation is purely
// derivable from its leaf-key coordinates. Non-recoverable errors and context
// cancellation are returned to the caller.
//
// reset is expected to tear down the session and re-establish the hierarchy
// position the operation needs; a recoverable failure inside reset is itself
// retried on the next turn of the loop.
func WithSessionRecovery(ctx context.Context, log logger.Logger, reset func() error, op Operation) error {
	attempt := 0
	needReset := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if needReset {
			if err := reset(); err != nil {
				if !errs.IsRecoverable(errs.TypeOf(err)) {
					return err
				}
				attempt++
				if log != nil {
					log.WarnWithFields("session re-establish failed, retrying", map[string]interface{}{
						"attempt": attempt,
						"error":   err.Error(),
					})
				}
				if werr := Wait(ctx, sessionRecoveryDelay.NextDelay(attempt)); werr != nil {
					return werr
				}
				continue
			}
			needReset = false
		}

		err := op()
		if err == nil {
			return nil
		}
		if !errs.IsRecoverable(errs.TypeOf(err)) {
			return err
		}

		attempt++
		needReset = true
		if log != nil {
			log.WarnWithFields("recoverable failure, resetting session and replaying", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		if werr := Wait(ctx, sessionRecoveryDelay.NextDelay(attempt)); werr != nil {
			return werr
		}
	}
}
