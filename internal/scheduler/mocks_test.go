package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/embed"
	"github.com/tessera-ai/tessera/internal/service"
	"github.com/tessera-ai/tessera/internal/source"
)

// MockSourceRepository is a mock implementation of SourceRepository
type MockSourceRepository struct {
	mock.Mock
}

func (m *MockSourceRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Source, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Source), args.Error(1)
}

func (m *MockSourceRepository) ListEnabled(ctx context.Context) ([]*domain.Source, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Source), args.Error(1)
}

func (m *MockSourceRepository) UnitStates(ctx context.Context, sourceID string) (map[string]string, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockSourceRepository) UpsertUnitStates(ctx context.Context, sourceID string, states map[string]string) error {
	args := m.Called(ctx, sourceID, states)
	return args.Error(0)
}

func (m *MockSourceRepository) DeleteUnitStates(ctx context.Context, sourceID string, refs []string) error {
	args := m.Called(ctx, sourceID, refs)
	return args.Error(0)
}

// MockRunRepository is a mock implementation of RunRepository. Finish
// forwards the terminal run to the finished channel so tests can wait
// for background runs without polling.
type MockRunRepository struct {
	mock.Mock
	finished chan *domain.IndexRun
}

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{finished: make(chan *domain.IndexRun, 4)}
}

func (m *MockRunRepository) Create(ctx context.Context, run *domain.IndexRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) UpdateState(ctx context.Context, runID string, state domain.RunState) error {
	args := m.Called(ctx, runID, state)
	return args.Error(0)
}

func (m *MockRunRepository) Finish(ctx context.Context, run *domain.IndexRun) error {
	args := m.Called(ctx, run)
	select {
	case m.finished <- run:
	default:
	}
	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, orgID, runID string) (*domain.IndexRun, error) {
	args := m.Called(ctx, orgID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexRun), args.Error(1)
}

func (m *MockRunRepository) ActiveRunForSource(ctx context.Context, sourceID string) (string, error) {
	args := m.Called(ctx, sourceID)
	return args.String(0), args.Error(1)
}

func (m *MockRunRepository) MarkStaleRunsFailed(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockFragmentStore is a mock implementation of FragmentStore
type MockFragmentStore struct {
	mock.Mock
}

func (m *MockFragmentStore) DeleteBySourcePrefix(ctx context.Context, orgID, projectID, prefix string) ([]string, error) {
	args := m.Called(ctx, orgID, projectID, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFragmentStore) DeleteStaleBySourcePrefixes(ctx context.Context, orgID, projectID string, prefixes []string, before time.Time) ([]string, error) {
	args := m.Called(ctx, orgID, projectID, prefixes, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// stubFactory hands out a fixed adapter
type stubFactory struct {
	adapter source.Adapter
	err     error
}

func (f *stubFactory) ForSource(src *domain.Source) (source.Adapter, error) {
	return f.adapter, f.err
}

// stubAdapter serves canned units. blockList makes ListUnits hang until
// the channel is closed or the run context ends, which keeps a run in
// flight for single-flight and cancellation tests.
type stubAdapter struct {
	kind      domain.SourceKind
	list      []source.Unit
	listErr   error
	content   map[string]string
	fetchErr  map[string]error
	blockList chan struct{}
	started   chan struct{}
	startOnce sync.Once

	mu      sync.Mutex
	fetched []string
}

func (a *stubAdapter) Kind() domain.SourceKind { return a.kind }

func (a *stubAdapter) ListUnits(ctx context.Context) ([]source.Unit, error) {
	if a.started != nil {
		a.startOnce.Do(func() { close(a.started) })
	}
	if a.blockList != nil {
		select {
		case <-a.blockList:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.list, nil
}

func (a *stubAdapter) Fetch(ctx context.Context, ref string) (source.Unit, error) {
	a.mu.Lock()
	a.fetched = append(a.fetched, ref)
	a.mu.Unlock()

	if err := a.fetchErr[ref]; err != nil {
		return source.Unit{}, err
	}
	for _, u := range a.list {
		if u.Ref == ref {
			u.Content = []byte(a.content[ref])
			return u, nil
		}
	}
	return source.Unit{}, domain.NewDomainError(domain.ErrCodeStorageFailure, "unknown unit "+ref)
}

func (a *stubAdapter) fetchedRefs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.fetched...)
}

// stubEmbedder returns a fixed vector per text. Texts containing
// failMatch come back as a failed batch; err fails the whole call.
type stubEmbedder struct {
	err       error
	failMatch string

	mu    sync.Mutex
	calls [][]string
}

func (e *stubEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, []embed.BatchError, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.err != nil {
		return nil, nil, e.err
	}
	vectors := make([][]float32, len(texts))
	var failed []int
	for i, text := range texts {
		if e.failMatch != "" && strings.Contains(text, e.failMatch) {
			failed = append(failed, i)
			continue
		}
		vectors[i] = []float32{1, 0}
	}
	var batchErrs []embed.BatchError
	if len(failed) > 0 {
		batchErrs = append(batchErrs, embed.BatchError{Indices: failed, Err: domain.ErrEmbeddingExhausted})
	}
	return vectors, batchErrs, nil
}

func (e *stubEmbedder) embeddedTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var all []string
	for _, call := range e.calls {
		all = append(all, call...)
	}
	return all
}

func (e *stubEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// recordingTx implements service.TxRunner against in-memory maps. Only
// the repository methods the store stage touches are implemented; the
// embedded interfaces cover the rest. Upsert failures are keyed by
// fragment title since ids are content-derived.
type recordingTx struct {
	mu         sync.Mutex
	attempts   map[string]int
	fragments  map[string]domain.Fragment
	edges      map[string][]*domain.RelationshipEdge
	failUpsert map[string]int
	failErr    error
}

func newRecordingTx() *recordingTx {
	return &recordingTx{
		attempts:   make(map[string]int),
		fragments:  make(map[string]domain.Fragment),
		edges:      make(map[string][]*domain.RelationshipEdge),
		failUpsert: make(map[string]int),
	}
}

func (r *recordingTx) WithTx(ctx context.Context, fn func(service.TxRepositories) error) error {
	return fn(txRepos{r})
}

func (r *recordingTx) fragment(id string) (domain.Fragment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fragments[id]
	return f, ok
}

func (r *recordingTx) fragmentTitles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var titles []string
	for _, f := range r.fragments {
		titles = append(titles, f.Title)
	}
	return titles
}

func (r *recordingTx) allFragments() []domain.Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Fragment
	for _, f := range r.fragments {
		all = append(all, f)
	}
	return all
}

func (r *recordingTx) outgoing(fromID string) ([]*domain.RelationshipEdge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	edges, ok := r.edges[fromID]
	return edges, ok
}

func (r *recordingTx) upsertAttempts(title string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[title]
}

type txRepos struct {
	r *recordingTx
}

func (t txRepos) Fragments() service.FragmentRepositoryInterface {
	return txFragments{r: t.r}
}

func (t txRepos) Edges() service.EdgeRepositoryInterface {
	return txEdges{r: t.r}
}

func (t txRepos) Sources() service.SourceRepositoryInterface {
	return nil
}

type txFragments struct {
	service.FragmentRepositoryInterface
	r *recordingTx
}

func (f txFragments) Upsert(ctx context.Context, frag *domain.Fragment) error {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	f.r.attempts[frag.Title]++
	if n := f.r.failUpsert[frag.Title]; n > 0 {
		f.r.failUpsert[frag.Title] = n - 1
		return f.r.failErr
	}
	f.r.fragments[frag.ID] = *frag
	return nil
}

type txEdges struct {
	service.EdgeRepositoryInterface
	r *recordingTx
}

func (e txEdges) ReplaceOutgoing(ctx context.Context, fromID string, edges []*domain.RelationshipEdge) error {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.r.edges[fromID] = edges
	return nil
}

// stubUUID issues run-1, run-2, ...
type stubUUID struct {
	mu sync.Mutex
	n  int
}

func (u *stubUUID) NewString() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.n++
	return fmt.Sprintf("run-%d", u.n)
}
