package scheduler

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/embed"
	"github.com/tessera-ai/tessera/internal/extract"
	"github.com/tessera-ai/tessera/internal/service"
	"github.com/tessera-ai/tessera/internal/source"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// indexUnit carries one changed unit through the pipeline stages.
type indexUnit struct {
	unit      source.Unit
	fragments []domain.Fragment
	// edges holds the outgoing edges per fragment id. Fragments with no
	// entry still get their stored edges replaced with the empty set.
	edges       map[string][]*domain.RelationshipEdge
	embedFailed bool
}

// runTracker accumulates counts and errors across the pipeline
// goroutines. Merged into the run once the pipeline settles, so a
// cancelled run still reports the work it finished.
type runTracker struct {
	mu        sync.Mutex
	processed int
	stored    int
	errors    []domain.RunError
	states    map[string]string
	prefixes  []string
}

func (t *runTracker) unitProcessed() {
	t.mu.Lock()
	t.processed++
	t.mu.Unlock()
}

func (t *runTracker) recordError(provider, code, message, unitRef string) {
	t.mu.Lock()
	t.errors = append(t.errors, domain.RunError{
		Provider: provider,
		Code:     code,
		Message:  message,
		UnitRef:  unitRef,
	})
	t.mu.Unlock()
}

// unitStored marks a unit as persisted. The prefix always joins the
// stale-sweep roster; the unit state is recorded only for clean units,
// so a unit with embedding failures is re-detected next run.
func (t *runTracker) unitStored(ref, hash, prefix string, fragments int, clean bool) {
	t.mu.Lock()
	t.stored += fragments
	t.prefixes = append(t.prefixes, prefix)
	if clean {
		t.states[ref] = hash
	}
	t.mu.Unlock()
}

// execute runs the pipeline to completion and persists the terminal
// state. It owns the run from here on; errors are recorded, never
// returned.
func (s *Scheduler) execute(ctx context.Context, run *domain.IndexRun, src *domain.Source, adapter source.Adapter, extractor extract.Extractor) {
	ctx, span := telemetry.StartSpan(ctx, "Scheduler.Run", telemetry.SpanAttributes{
		OrgID:     src.OrgID,
		ProjectID: src.ProjectID,
		SourceID:  src.ID,
		RunID:     run.RunID,
		Operation: string(run.Scope),
	})
	defer span.End()

	err := s.runPipeline(ctx, run, src, adapter, extractor)

	now := time.Now().UTC()
	run.CompletedAt = &now
	switch {
	case err == nil:
		run.State = domain.RunStateCompleted
	case errors.Is(err, context.Canceled):
		run.State = domain.RunStateCancelled
	default:
		run.State = domain.RunStateFailed
		run.RecordError("scheduler", errorCode(err), err.Error(), "")
		span.SetError(err)
	}

	// The run context is dead after a cancel; the terminal state must
	// still reach the database.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if finishErr := s.runs.Finish(finishCtx, run); finishErr != nil {
		telemetry.CaptureError(finishCtx, finishErr)
		log.Printf("Failed to persist terminal state for run %s: %v", run.RunID, finishErr)
	}
	log.Printf("Index run %s %s: processed=%d stored=%d skipped=%d removed=%d errors=%d",
		run.RunID, run.State, run.Processed, run.Stored, run.Skipped, run.Removed, len(run.Errors))
}

func (s *Scheduler) runPipeline(ctx context.Context, run *domain.IndexRun, src *domain.Source, adapter source.Adapter, extractor extract.Extractor) error {
	runStart := run.StartedAt

	changed, err := s.detect(ctx, run, src, adapter)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, run, domain.RunStateExtracting); err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	tracker := &runTracker{states: make(map[string]string)}
	extractCh := make(chan indexUnit, s.inFlightLimit)
	storeCh := make(chan indexUnit, s.inFlightLimit)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(extractCh)
		return s.extractStage(gctx, run, adapter, extractor, changed, tracker, extractCh)
	})
	g.Go(func() error {
		defer close(storeCh)
		return s.embedStage(gctx, run, tracker, extractCh, storeCh)
	})
	g.Go(func() error {
		return s.storeStage(gctx, src, tracker, storeCh)
	})

	err = g.Wait()
	mergeTracker(run, tracker)
	if err != nil {
		return err
	}

	// Units that stored successfully this run own their prefix again:
	// fragments under it not touched since the run started no longer
	// exist in the source and are swept.
	swept, err := s.fragments.DeleteStaleBySourcePrefixes(ctx, src.OrgID, src.ProjectID, tracker.prefixes, runStart)
	if err != nil {
		return err
	}
	run.Removed += len(swept)

	if len(tracker.states) > 0 {
		if err := s.sources.UpsertUnitStates(ctx, src.ID, tracker.states); err != nil {
			return err
		}
	}
	return nil
}

// detect lists current units, classifies them against the stored unit
// states, and deletes fragments of units the source no longer has.
// Returns the units that need the full pipeline.
func (s *Scheduler) detect(ctx context.Context, run *domain.IndexRun, src *domain.Source, adapter source.Adapter) ([]source.Unit, error) {
	units, err := adapter.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	known, err := s.sources.UnitStates(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	var changed []source.Unit
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		seen[u.Ref] = true
		if run.Scope == domain.RunScopeFull || known[u.Ref] != u.ContentHash {
			changed = append(changed, u)
		} else {
			run.Skipped++
		}
	}

	var removed []string
	for ref := range known {
		if !seen[ref] {
			removed = append(removed, ref)
		}
	}
	sort.Strings(removed)
	for _, ref := range removed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := s.fragments.DeleteBySourcePrefix(ctx, src.OrgID, src.ProjectID, unitPrefix(src.Kind, ref))
		if err != nil {
			return nil, err
		}
		run.Removed += len(ids)
	}
	if len(removed) > 0 {
		if err := s.sources.DeleteUnitStates(ctx, src.ID, removed); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

// extractStage fetches and extracts each changed unit. A unit that
// fails to fetch or parse is recorded and skipped; the rest of the run
// continues without it.
func (s *Scheduler) extractStage(ctx context.Context, run *domain.IndexRun, adapter source.Adapter, extractor extract.Extractor, changed []source.Unit, tracker *runTracker, out chan<- indexUnit) error {
	for _, u := range changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		tracker.unitProcessed()

		unit, err := adapter.Fetch(ctx, u.Ref)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tracker.recordError("source", errorCode(err), err.Error(), u.Ref)
			continue
		}

		fragments, edges, err := extractor.Extract(unit)
		if err != nil {
			tracker.recordError("extractor", errorCode(err), err.Error(), u.Ref)
			continue
		}
		if err := validFragments(fragments); err != nil {
			tracker.recordError("extractor", domain.ErrCodeParse, err.Error(), u.Ref)
			continue
		}

		outgoing := make(map[string][]*domain.RelationshipEdge, len(edges))
		for i := range edges {
			e := edges[i]
			outgoing[e.FromID] = append(outgoing[e.FromID], &e)
		}

		select {
		case out <- indexUnit{unit: unit, fragments: fragments, edges: outgoing}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.transition(ctx, run, domain.RunStateEmbedding)
}

// embedStage batches fragments across unit boundaries up to the provider
// batch size, embeds them, and attaches vectors. Failed batches mark
// their fragments failed instead of aborting the run; configuration
// errors and cancellation do abort.
func (s *Scheduler) embedStage(ctx context.Context, run *domain.IndexRun, tracker *runTracker, in <-chan indexUnit, out chan<- indexUnit) error {
	var pending []indexUnit
	pendingTexts := 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		texts := make([]string, 0, pendingTexts)
		for _, iu := range pending {
			for i := range iu.fragments {
				texts = append(texts, iu.fragments[i].EmbeddingText())
			}
		}

		vectors, batchErrs, err := s.embedder.EmbedAll(ctx, texts)
		if err != nil {
			return err
		}
		failed := make(map[int]bool)
		for _, be := range batchErrs {
			tracker.recordError("embedder", errorCode(be.Err), be.Err.Error(), "")
			for _, idx := range be.Indices {
				failed[idx] = true
			}
		}

		pos := 0
		for ui := range pending {
			for fi := range pending[ui].fragments {
				f := &pending[ui].fragments[fi]
				if failed[pos] || vectors[pos] == nil {
					f.EmbeddingStatus = domain.EmbeddingStatusFailed
					pending[ui].embedFailed = true
				} else {
					f.Embedding = vectors[pos]
					f.EmbeddingStatus = domain.EmbeddingStatusEmbedded
				}
				pos++
			}
		}

		for _, iu := range pending {
			select {
			case out <- iu:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		pending = nil
		pendingTexts = 0
		return nil
	}

	for iu := range in {
		pending = append(pending, iu)
		pendingTexts += len(iu.fragments)
		if pendingTexts >= embed.MaxBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return s.transition(ctx, run, domain.RunStateStoring)
}

// storeStage persists each unit in one transaction. A failed unit gets
// one retry before it is recorded and skipped.
func (s *Scheduler) storeStage(ctx context.Context, src *domain.Source, tracker *runTracker, in <-chan indexUnit) error {
	for iu := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.storeUnit(ctx, iu)
		if err != nil && ctx.Err() == nil {
			err = s.storeUnit(ctx, iu)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tracker.recordError("storage", errorCode(err), err.Error(), iu.unit.Ref)
			continue
		}
		tracker.unitStored(iu.unit.Ref, iu.unit.ContentHash, unitPrefix(src.Kind, iu.unit.Ref), len(iu.fragments), !iu.embedFailed)
	}
	return nil
}

// storeUnit upserts a unit's fragments and replaces their outgoing
// edges atomically. Edges land after every fragment of the unit exists,
// so within-unit targets always resolve.
func (s *Scheduler) storeUnit(ctx context.Context, iu indexUnit) error {
	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(repos service.TxRepositories) error {
		for i := range iu.fragments {
			f := &iu.fragments[i]
			f.UpdatedAt = now
			if err := repos.Fragments().Upsert(ctx, f); err != nil {
				return err
			}
		}
		for i := range iu.fragments {
			id := iu.fragments[i].ID
			if err := repos.Edges().ReplaceOutgoing(ctx, id, iu.edges[id]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Scheduler) transition(ctx context.Context, run *domain.IndexRun, state domain.RunState) error {
	run.State = state
	return s.runs.UpdateState(ctx, run.RunID, state)
}

func mergeTracker(run *domain.IndexRun, t *runTracker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run.Processed += t.processed
	run.Stored += t.stored
	run.Errors = append(run.Errors, t.errors...)
}

// unitPrefix returns the source-reference prefix owned by one unit.
// Code references are "path:line" and session references "session#turn";
// the separator keeps "main.go" from matching "main.gov". Knowledge
// units produce exactly one fragment whose reference is the ref itself.
func unitPrefix(kind domain.SourceKind, ref string) string {
	switch kind {
	case domain.SourceKindCodeFilesystem:
		return ref + ":"
	case domain.SourceKindSessionLog:
		return ref + "#"
	}
	return ref
}

func validFragments(fragments []domain.Fragment) error {
	for i := range fragments {
		if err := domain.ValidateFragment(&fragments[i]); err != nil {
			return err
		}
	}
	return nil
}

func errorCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return domain.ErrCodeInternalError
}
