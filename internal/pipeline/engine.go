package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Engine runs ingestion pipelines and serves search over completed
// domains. ProcessDomain returns a lazy, finite, non-restartable stream
// of RAGMetrics snapshots, one per stage transition, terminated by a
// snapshot whose Status is terminal.
type Engine interface {
	Initialize(ctx context.Context) error
	ProcessDomain(ctx context.Context, cfg DomainConfig) (<-chan RAGMetrics, error)
	SearchKnowledge(ctx context.Context, domain, query string, limit int) ([]ProcessedChunk, error)
	Metrics(pipelineID uuid.UUID) (RAGMetrics, bool)
	HealthCheck(ctx context.Context) error
	Cleanup(ctx context.Context, domain string) error
}

// Factory constructs an Engine. Dependencies are closed over by the
// registrant so tests can register fakes.
type Factory func() (Engine, error)

// Registry maps implementation names to engine factories. It is plain
// dependency-injected state, not a process-wide global; exactly one
// entry may be flagged default.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	def       string
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory, isDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("engine %q already registered", name)
	}
	r.factories[name] = f
	if isDefault {
		if r.def != "" && r.def != name {
			return fmt.Errorf("default engine already set to %q", r.def)
		}
		r.def = name
	}
	return nil
}

// Create instantiates the named engine; an empty name selects the
// default.
func (r *Registry) Create(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.def
	}
	if name == "" {
		return nil, fmt.Errorf("no default engine registered")
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", name)
	}
	return f()
}

func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
