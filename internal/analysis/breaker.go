package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// BreakerConfig configures the circuit breaker around an analyzer.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	MaxRequests      uint32
	Timeout          time.Duration
	// OnStateChange is called with the new state name, if set.
	OnStateChange func(state string)
}

// Breaker wraps an Analyzer with a circuit breaker. While open it fails fast.
type Breaker struct {
	next Analyzer
	cb   *gobreaker.CircuitBreaker[models.TasteAnalysisResult]
}

// NewBreaker wraps next.
func NewBreaker(next Analyzer, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "analysis"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Analysis circuit breaker state changed")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(to.String())
			}
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[models.TasteAnalysisResult](settings),
	}
}

// Analyze implements Analyzer.
func (b *Breaker) Analyze(ctx context.Context, req Request) (models.TasteAnalysisResult, error) {
	res, err := b.cb.Execute(func() (models.TasteAnalysisResult, error) {
		return b.next.Analyze(ctx, req)
	})
	if err != nil {
		return models.TasteAnalysisResult{}, wrapError("breaker", err)
	}
	return res, nil
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
