// Package scheduler drives indexing runs. Each run walks one registered
// source through detect, extract, embed, and store stages; single-flight
// per source is enforced in memory, with the run history persisted for
// inspection and restart recovery.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/embed"
	"github.com/tessera-ai/tessera/internal/extract"
	"github.com/tessera-ai/tessera/internal/service"
	"github.com/tessera-ai/tessera/internal/source"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// SourceRepository defines the source persistence the scheduler needs
type SourceRepository interface {
	GetByID(ctx context.Context, orgID, id string) (*domain.Source, error)
	ListEnabled(ctx context.Context) ([]*domain.Source, error)
	UnitStates(ctx context.Context, sourceID string) (map[string]string, error)
	UpsertUnitStates(ctx context.Context, sourceID string, states map[string]string) error
	DeleteUnitStates(ctx context.Context, sourceID string, refs []string) error
}

// RunRepository defines run history persistence
type RunRepository interface {
	Create(ctx context.Context, run *domain.IndexRun) error
	UpdateState(ctx context.Context, runID string, state domain.RunState) error
	Finish(ctx context.Context, run *domain.IndexRun) error
	GetByID(ctx context.Context, orgID, runID string) (*domain.IndexRun, error)
	ActiveRunForSource(ctx context.Context, sourceID string) (string, error)
	MarkStaleRunsFailed(ctx context.Context, before time.Time) (int64, error)
}

// FragmentStore defines the bulk fragment deletions a run performs
// outside the per-unit store transaction.
type FragmentStore interface {
	DeleteBySourcePrefix(ctx context.Context, orgID, projectID, prefix string) ([]string, error)
	DeleteStaleBySourcePrefixes(ctx context.Context, orgID, projectID string, prefixes []string, before time.Time) ([]string, error)
}

// AdapterFactory resolves the adapter serving a registered source
type AdapterFactory interface {
	ForSource(src *domain.Source) (source.Adapter, error)
}

// Embedder embeds fragment texts with per-batch failure isolation
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, []embed.BatchError, error)
}

const defaultInFlightLimit = 64

// Options tunes the scheduler. Zero values fall back to defaults.
type Options struct {
	// InFlightLimit bounds the units buffered between pipeline stages.
	InFlightLimit int
}

// flight is one active run, held in the per-source flight map.
type flight struct {
	runID  string
	orgID  string
	cancel context.CancelFunc
}

// Scheduler owns the per-source flight map and executes runs on
// background goroutines. A Scheduler must be shut down to wait out
// active runs.
type Scheduler struct {
	sources       SourceRepository
	fragments     FragmentStore
	runs          RunRepository
	tx            service.TxRunner
	adapters      AdapterFactory
	embedder      Embedder
	uuidGen       service.UUIDGenerator
	inFlightLimit int

	mu      sync.Mutex
	flights map[string]*flight
	wg      sync.WaitGroup
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(sources SourceRepository, fragments FragmentStore, runs RunRepository, tx service.TxRunner, adapters AdapterFactory, embedder Embedder, uuidGen service.UUIDGenerator, opts Options) *Scheduler {
	limit := opts.InFlightLimit
	if limit <= 0 {
		limit = defaultInFlightLimit
	}
	return &Scheduler{
		sources:       sources,
		fragments:     fragments,
		runs:          runs,
		tx:            tx,
		adapters:      adapters,
		embedder:      embedder,
		uuidGen:       uuidGen,
		inFlightLimit: limit,
		flights:       make(map[string]*flight),
	}
}

// TriggerInput identifies the source to index and how much of it to cover
type TriggerInput struct {
	OrgID    string
	SourceID string
	Scope    domain.RunScope
}

// Trigger starts an indexing run for a source and returns its run id
// immediately; the run itself executes on a background goroutine. A
// second trigger while the source has a run in flight is rejected.
func (s *Scheduler) Trigger(ctx context.Context, input TriggerInput) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "Scheduler.Trigger", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		SourceID:  input.SourceID,
		Operation: "trigger",
	})
	defer span.End()

	if input.OrgID == "" || input.SourceID == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "org id and source id are required")
	}
	scope := input.Scope
	if scope == "" {
		scope = domain.RunScopeIncremental
	}
	if scope != domain.RunScopeFull && scope != domain.RunScopeIncremental {
		return "", domain.ErrInvalidRunScope
	}

	src, err := s.sources.GetByID(ctx, input.OrgID, input.SourceID)
	if err != nil {
		return "", err
	}
	if !src.Enabled {
		return "", domain.ErrSourceDisabled
	}

	// Resolve the adapter and extractor up front: a misconfigured source
	// fails the trigger, not a background run.
	adapter, err := s.adapters.ForSource(src)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	extractor, err := extract.ForKind(src.Kind, src.OrgID, src.ProjectID)
	if err != nil {
		return "", err
	}

	// Reserve the in-memory flight before the persisted check so two
	// concurrent triggers cannot both pass.
	runID := s.uuidGen.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	if !s.reserve(src.ID, &flight{runID: runID, orgID: src.OrgID, cancel: cancel}) {
		cancel()
		return "", domain.ErrRunInFlight
	}

	activeID, err := s.runs.ActiveRunForSource(ctx, src.ID)
	if err != nil {
		s.release(src.ID)
		cancel()
		return "", err
	}
	if activeID != "" {
		s.release(src.ID)
		cancel()
		return "", domain.ErrRunInFlight
	}

	run := domain.NewIndexRun(runID, src.ID, src.OrgID, scope, time.Now().UTC())
	if err := s.runs.Create(ctx, run); err != nil {
		s.release(src.ID)
		cancel()
		span.SetError(err)
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(src.ID)
		defer cancel()
		s.execute(runCtx, run, src, adapter, extractor)
	}()

	log.Printf("Index run %s started for source %s (scope: %s)", runID, src.ID, scope)
	return runID, nil
}

// Cancel stops an active run. Runs already finished are not cancelable;
// a run left open by a previous process is closed out directly.
func (s *Scheduler) Cancel(ctx context.Context, orgID, runID string) error {
	if orgID == "" || runID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "org id and run id are required")
	}

	s.mu.Lock()
	for _, f := range s.flights {
		if f.runID == runID && f.orgID == orgID {
			f.cancel()
			s.mu.Unlock()
			log.Printf("Index run %s cancellation requested", runID)
			return nil
		}
	}
	s.mu.Unlock()

	run, err := s.runs.GetByID(ctx, orgID, runID)
	if err != nil {
		return err
	}
	if run.State.IsTerminal() {
		return domain.ErrRunNotCancelable
	}

	// Open in the database but not in this process: the run belongs to a
	// scheduler that no longer exists.
	now := time.Now().UTC()
	run.State = domain.RunStateCancelled
	run.CompletedAt = &now
	return s.runs.Finish(ctx, run)
}

// RecoverStaleRuns closes runs left open by a previous process. Called
// once at startup, before the first trigger is accepted.
func (s *Scheduler) RecoverStaleRuns(ctx context.Context) error {
	n, err := s.runs.MarkStaleRunsFailed(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("Marked %d stale index runs as failed", n)
	}
	return nil
}

// Shutdown cancels every active run and waits for them to finish
// persisting their terminal state.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, f := range s.flights {
		f.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) reserve(sourceID string, f *flight) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.flights[sourceID]; busy {
		return false
	}
	s.flights[sourceID] = f
	return true
}

func (s *Scheduler) release(sourceID string) {
	s.mu.Lock()
	delete(s.flights, sourceID)
	s.mu.Unlock()
}
