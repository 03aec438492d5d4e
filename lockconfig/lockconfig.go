// Package lockconfig loads lockset's process-wide tunables from
// environment variables, using the teacher's own config package (koanf
// under the hood) instead of hand-rolled env parsing. This is additive to
// lockset's explicit SetXxx setters — both remain available, and bootstrap
// code may mix them.
package lockconfig

import (
	"time"

	"github.com/kvlock/lockset/config"
	"github.com/kvlock/lockset/lockset"
	"github.com/kvlock/lockset/log"
	logidentity "github.com/kvlock/lockset/log/identity"
	"github.com/kvlock/lockset/version"
)

const envPrefix = "LOCKSET_"

// Settings mirrors lockset's process-wide knobs (spec.md §6), unmarshalled
// from environment variables such as LOCKSET_PREFIX,
// LOCKSET_MAX_SAVE_RETRIES, LOCKSET_MAX_DELAY_PER_SAVE_RETRY_US, and so on.
type Settings struct {
	Prefix                     string        `koanf:"prefix"`
	WaitRetryInterval          time.Duration `koanf:"wait_retry_interval"`
	MaxSaveRetries             int           `koanf:"max_save_retries"`
	MaxDelayPerSaveRetryMicros int64         `koanf:"max_delay_per_save_retry_us"`
	MaxUnavailableRetries      int           `koanf:"max_unavailable_retries"`
	DelayPerUnavailableRetry   time.Duration `koanf:"delay_per_unavailable_retry"`
	ServiceName                string        `koanf:"service_name"`
	LogLevel                   string        `koanf:"log_level"`
}

// defaults mirrors lockset's own built-in defaults (spec.md §6), so a
// caller that sets no environment variables at all gets identical
// behavior to never having called Load.
func defaults() Settings {
	return Settings{
		Prefix:                     "lock/",
		WaitRetryInterval:          time.Second,
		MaxSaveRetries:             100,
		MaxDelayPerSaveRetryMicros: 1000,
		MaxUnavailableRetries:      3,
		DelayPerUnavailableRetry:   time.Second,
		ServiceName:                "lockset",
		LogLevel:                   "info",
	}
}

// Load reads LOCKSET_*-prefixed environment variables into Settings,
// falling back to lockset's built-in defaults for anything unset.
func Load() (Settings, error) {
	settings := defaults()

	cfg, err := config.NewConfiguration(nil, config.WithEnvPrefix(envPrefix), config.WithEnvSeparator("__"))
	if err != nil {
		return Settings{}, err
	}
	if err := cfg.Unmarshal("", &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Apply calls lockset's process-wide setters with s's values, and builds
// its logger via the teacher's own log.NewLogger, tagged with the service
// name (log/identity.SetServiceName), the process instance ID
// (log/identity.WhoAmI), and this build's version.Current(). Intended for
// bootstrap, before any Lock handle starts operating.
func Apply(s Settings) {
	lockset.SetPrefix(s.Prefix)
	lockset.SetWaitRetryInterval(s.WaitRetryInterval)
	lockset.SetMaxSaveRetries(s.MaxSaveRetries)
	lockset.SetMaxDelayPerSaveRetry(time.Duration(s.MaxDelayPerSaveRetryMicros) * time.Microsecond)
	lockset.SetMaxUnavailableRetries(s.MaxUnavailableRetries)
	lockset.SetDelayPerUnavailableRetry(s.DelayPerUnavailableRetry)

	if err := log.SetLogLevel(s.LogLevel); err != nil {
		return
	}
	logidentity.SetServiceName(s.ServiceName)
	serviceName, instanceID := logidentity.WhoAmI()
	v := version.Current()
	if logger, err := log.NewLogger(
		log.WithServiceName(serviceName),
		log.WithInstanceID(instanceID),
		log.WithVersion(&v),
	); err == nil {
		lockset.SetLogger(logger)
	}
}

// LoadAndApply is Load followed by Apply, for the common bootstrap case.
func LoadAndApply() error {
	settings, err := Load()
	if err != nil {
		return err
	}
	Apply(settings)
	return nil
}
