package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the planner's dedicated Prometheus registry.
	Registry = prometheus.NewRegistry()

	// ProviderRequests counts routing provider calls by provider and outcome.
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routing_provider_requests_total", Help: "Routing provider requests by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	// DegradedCells counts matrix cells filled from the haversine fallback.
	DegradedCells = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "matrix_degraded_cells_total", Help: "Matrix cells filled by the haversine fallback."},
	)
	// CacheEvents counts matrix cache lookups by backend and result.
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "matrix_cache_events_total", Help: "Matrix cache events by backend and result."},
		[]string{"backend", "result"},
	)
	// SolverIterations counts search iterations by backend.
	SolverIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_iterations_total", Help: "Solver search iterations by backend."},
		[]string{"backend"},
	)
	// SolverImprovements counts accepted improving moves by backend.
	SolverImprovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_improvements_total", Help: "Accepted improving solver moves by backend."},
		[]string{"backend"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all planner collectors on the registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(ProviderRequests)
		Registry.MustRegister(DegradedCells)
		Registry.MustRegister(CacheEvents)
		Registry.MustRegister(SolverIterations)
		Registry.MustRegister(SolverImprovements)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
