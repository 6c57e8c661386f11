// Package revocation holds the token revocation list consulted on every
// authenticated request. Entries expire with the token they revoke.
package revocation

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"benefits/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

var isRevokedDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "benefits_is_token_revoked_duration_ms",
	Help:    "Latency of token revocation checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
}, []string{"backend"})

func observe(backend string, start time.Time) {
	isRevokedDurationMs.WithLabelValues(backend).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
