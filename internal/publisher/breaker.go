package publisher

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
)

// BreakerConfig configures the circuit breaker wrapped around a sink.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

// NewBreaker creates a breaker that opens after FailureThreshold
// consecutive failures and half-opens after Timeout.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[interface{}] {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
