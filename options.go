package uplink

import (
	"time"

	"github.com/phrazzld/uplink/backoff"
	"github.com/phrazzld/uplink/config"
)

// Options holds tunable queue behavior. Zero values are replaced by the
// defaults below.
type Options struct {
	// TickInterval is how often the scheduler loop attempts a pass.
	TickInterval time.Duration

	// StepTimeout bounds every remote pipeline step. A hung remote call
	// is cancelled at this deadline instead of holding the execution slot
	// indefinitely.
	StepTimeout time.Duration

	// Retention is how long completed jobs are kept before garbage
	// collection. Failed jobs are retained indefinitely.
	Retention time.Duration

	// HandleTTL is the lifetime requested for signed artifact URLs.
	HandleTTL time.Duration

	// MaxArtifactBytes is the size ceiling above which an artifact fails
	// permanently.
	MaxArtifactBytes int64
}

// DefaultOptions returns the queue defaults: 15s tick, 2m step timeout,
// 24h retention, 1h handle TTL, 200 MiB artifact ceiling.
func DefaultOptions() Options {
	return Options{
		TickInterval:     15 * time.Second,
		StepTimeout:      2 * time.Minute,
		Retention:        24 * time.Hour,
		HandleTTL:        1 * time.Hour,
		MaxArtifactBytes: 200 * 1024 * 1024,
	}
}

// withDefaults fills any zero field from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = def.StepTimeout
	}
	if o.Retention <= 0 {
		o.Retention = def.Retention
	}
	if o.HandleTTL <= 0 {
		o.HandleTTL = def.HandleTTL
	}
	if o.MaxArtifactBytes <= 0 {
		o.MaxArtifactBytes = def.MaxArtifactBytes
	}
	return o
}

// OptionsFromConfig maps a loaded configuration onto queue options and a
// backoff policy.
func OptionsFromConfig(cfg config.QueueConfig) (Options, backoff.Policy) {
	opts := Options{
		TickInterval:     cfg.TickInterval,
		StepTimeout:      cfg.StepTimeout,
		Retention:        cfg.Retention,
		HandleTTL:        cfg.HandleTTL,
		MaxArtifactBytes: cfg.MaxArtifactBytes,
	}.withDefaults()

	policy := backoff.Policy{
		Base:        cfg.BackoffBase,
		Cap:         cfg.BackoffCap,
		MaxAttempts: cfg.MaxAttempts,
	}

	return opts, policy
}
