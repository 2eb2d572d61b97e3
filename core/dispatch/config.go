package dispatch

import (
	"fmt"
	"time"
)

// Config holds the scheduler tunables.
type Config struct {
	// OfferTimeoutSeconds is the response window per offer.
	OfferTimeoutSeconds int `json:"offer_timeout_seconds"`
	// WaitOnDeliveryFailure keeps the full response window open even when the
	// push could not reach the farmer. The default treats a failed delivery
	// as an immediate implicit decline.
	WaitOnDeliveryFailure bool `json:"wait_on_delivery_failure"`
	// StoreRetryAttempts bounds retries for transient order-store and ranking
	// reads at run start.
	StoreRetryAttempts int `json:"store_retry_attempts"`
	// StoreRetryBackoffMS is the initial backoff between retries; it doubles
	// per attempt.
	StoreRetryBackoffMS int `json:"store_retry_backoff_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.OfferTimeoutSeconds <= 0 {
		c.OfferTimeoutSeconds = 20
	}
	if c.StoreRetryAttempts <= 0 {
		c.StoreRetryAttempts = 3
	}
	if c.StoreRetryBackoffMS <= 0 {
		c.StoreRetryBackoffMS = 100
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.OfferTimeoutSeconds < 0 {
		return fmt.Errorf("offer_timeout_seconds must not be negative")
	}
	return nil
}

// OfferTimeout returns the response window as a duration.
func (c Config) OfferTimeout() time.Duration {
	return time.Duration(c.OfferTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial retry backoff as a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.StoreRetryBackoffMS) * time.Millisecond
}
