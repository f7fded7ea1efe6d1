package health

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the embedding provider is unreachable; cached data still serves.
	Degraded Status = "degraded"
	// Unhealthy indicates the document store is unavailable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Index  retrieval.Stats
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	index     IndexStats
	logger    *zap.Logger
}

// New creates a Service. embedding and index can be nil.
func New(store StorePinger, embedding EmbeddingChecker, index IndexStats, logger *zap.Logger) *Service {
	return &Service{store: store, embedding: embedding, index: index, logger: logger}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Store health check failed", zap.Error(err))
		checks["store"] = CheckError
		status = Unhealthy
	} else {
		checks["store"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			s.logger.Warn("Embedding health check failed", zap.Error(err))
			checks["embedding"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["embedding"] = CheckOK
		}
	}

	var stats retrieval.Stats
	if s.index != nil {
		stats = s.index.Stats()
	}

	return Report{Status: status, Checks: checks, Index: stats}
}
