package reprocessing

import (
	"context"
	"fmt"
	"time"

	"github.com/ratevault/pipeline/internal/config"
)

// category is the unified_config category reprocessing's own parameters
// live under, following the same per-component scoping
// internal/orchestrator uses for its five categories.
const category = "reprocessing"

// Config holds every tunable of the reprocessing controller, loaded once
// at startup with no defaults baked into code, exactly as the
// orchestration engine's own Bundle is.
type Config struct {
	// ProcessingTimeout bounds one dedup-only invocation.
	ProcessingTimeout time.Duration

	// LockStaleAfter is loaded from lock_stale_after_ms. The lock store
	// does not read it: storage.LockStore reclaims a held lock once it is
	// older than its own fixed staleLockAge (10 minutes).
	LockStaleAfter time.Duration

	// CircuitBreakerThreshold is the consecutive-failure count that
	// trips the breaker from closed to open.
	CircuitBreakerThreshold int

	// CircuitBreakerResetAfter is how long the breaker stays open before
	// allowing a half-open probe.
	CircuitBreakerResetAfter time.Duration

	// CircuitBreakerHalfOpenMax caps concurrent probes while half-open.
	CircuitBreakerHalfOpenMax int

	// RetryMaxAttempts, RetryInitialDelay, RetryMaxDelay, RetryMultiplier
	// configure the exponential backoff wrapped around each invocation,
	// tried before the circuit breaker counts a failure.
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64

	// FailsafeInterval is how often the cron failsafe emits
	// recovery:trigger absent any other activity.
	FailsafeInterval time.Duration

	// KafkaBrokers/KafkaTopic/KafkaGroupID configure the scraper.events
	// consumer group. KafkaEnabled lets a
	// deployment with no Kafka cluster run on the in-process trigger
	// channel alone.
	KafkaEnabled  bool
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
}

// LoadConfig reads the reprocessing category and fails loud
// (config.ErrConfigLoadFailed) if any required key is missing.
func LoadConfig(ctx context.Context, loader *config.Loader) (Config, error) {
	required := []string{
		"processing_timeout_ms", "lock_stale_after_ms",
		"circuit_breaker_threshold", "circuit_breaker_reset_ms", "circuit_breaker_half_open_max",
		"retry_max_attempts", "retry_initial_delay_ms", "retry_max_delay_ms", "retry_multiplier",
		"failsafe_interval_ms",
		"kafka_enabled", "kafka_brokers", "kafka_topic", "kafka_group_id",
	}

	cat, err := loader.Load(ctx, category, required)
	if err != nil {
		return Config{}, err
	}

	var cfg Config

	if err := durationMsInto(cat, "processing_timeout_ms", &cfg.ProcessingTimeout); err != nil {
		return Config{}, err
	}
	if err := durationMsInto(cat, "lock_stale_after_ms", &cfg.LockStaleAfter); err != nil {
		return Config{}, err
	}
	if err := intInto(cat, "circuit_breaker_threshold", &cfg.CircuitBreakerThreshold); err != nil {
		return Config{}, err
	}
	if err := durationMsInto(cat, "circuit_breaker_reset_ms", &cfg.CircuitBreakerResetAfter); err != nil {
		return Config{}, err
	}
	if err := intInto(cat, "circuit_breaker_half_open_max", &cfg.CircuitBreakerHalfOpenMax); err != nil {
		return Config{}, err
	}
	if err := intInto(cat, "retry_max_attempts", &cfg.RetryMaxAttempts); err != nil {
		return Config{}, err
	}
	if err := durationMsInto(cat, "retry_initial_delay_ms", &cfg.RetryInitialDelay); err != nil {
		return Config{}, err
	}
	if err := durationMsInto(cat, "retry_max_delay_ms", &cfg.RetryMaxDelay); err != nil {
		return Config{}, err
	}
	if err := floatInto(cat, "retry_multiplier", &cfg.RetryMultiplier); err != nil {
		return Config{}, err
	}
	if err := durationMsInto(cat, "failsafe_interval_ms", &cfg.FailsafeInterval); err != nil {
		return Config{}, err
	}
	if err := boolInto(cat, "kafka_enabled", &cfg.KafkaEnabled); err != nil {
		return Config{}, err
	}
	if err := jsonInto(cat, "kafka_brokers", &cfg.KafkaBrokers); err != nil {
		return Config{}, err
	}
	if err := stringInto(cat, "kafka_topic", &cfg.KafkaTopic); err != nil {
		return Config{}, err
	}
	if err := stringInto(cat, "kafka_group_id", &cfg.KafkaGroupID); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func floatInto(cat config.Category, key string, dst *float64) error {
	v, err := cat[key].Float()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func intInto(cat config.Category, key string, dst *int) error {
	v, err := cat[key].Int()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func boolInto(cat config.Category, key string, dst *bool) error {
	v, err := cat[key].Bool()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func stringInto(cat config.Category, key string, dst *string) error {
	v, err := cat[key].String()
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	*dst = v
	return nil
}

func jsonInto(cat config.Category, key string, dst any) error {
	if err := cat[key].JSON(dst); err != nil {
		return fmt.Errorf("%w: key %q: %w", config.ErrConfigLoadFailed, key, err)
	}
	return nil
}

func durationMsInto(cat config.Category, key string, dst *time.Duration) error {
	var ms float64
	if err := floatInto(cat, key, &ms); err != nil {
		return err
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}
