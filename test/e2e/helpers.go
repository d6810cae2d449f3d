//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/handlers"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/embed"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/scheduler"
	"github.com/tessera-ai/tessera/internal/server"
	"github.com/tessera-ai/tessera/internal/service"
	"github.com/tessera-ai/tessera/internal/source"
	"github.com/tessera-ai/tessera/internal/testutil"
)

const embeddingDimension = 1536

// E2ETestEnv holds all resources needed for E2E tests: the pgvector
// container, an in-process server wired like `tesserad serve` (with the
// deterministic noop embedding provider instead of OpenAI), and a
// bootstrapped org with an API key.
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	S3Client     *source.S3Client
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Scheduler    *scheduler.Scheduler
	AuthSvc      *service.AuthService
	SourceRepo   *repository.SourceRepository
	OrgID        string
	ProjectID    string
	AuthToken    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a database
// container and a running HTTP server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	return setupEnv(t, false)
}

// SetupE2EEnvWithS3 additionally starts an object-store container and
// wires its client into the server, so knowledge sources can be indexed.
func SetupE2EEnvWithS3(t *testing.T) *E2ETestEnv {
	return setupEnv(t, true)
}

func setupEnv(t *testing.T, withS3 bool) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		Pool:       pool,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if withS3 {
		env.RustFSC = testutil.NewRustFSContainer(ctx, t)
		env.S3Client, err = source.NewS3Client(ctx, source.S3ClientConfig{
			Endpoint:        env.RustFSC.Endpoint(),
			Region:          "us-east-1",
			AccessKeyID:     "rustfsadmin",
			SecretAccessKey: "rustfsadmin",
			UsePathStyle:    true,
		})
		if err != nil {
			t.Fatalf("failed to create object store client: %v", err)
		}
	}
	env.startServer(t, pool, port)
	return env
}

// Cleanup releases all resources.
func (e *E2ETestEnv) Cleanup() {
	if e.Scheduler != nil {
		e.Scheduler.Shutdown()
	}
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
}

// Bootstrap creates an organization and API key through the auth service,
// the same path the `tesserad org create` and `tesserad apikey create`
// admin commands take.
func (e *E2ETestEnv) Bootstrap() {
	org, err := e.AuthSvc.CreateOrg(e.Ctx, "E2E Test Org")
	if err != nil {
		e.T.Fatalf("failed to create org: %v", err)
	}
	e.OrgID = org.ID

	token, err := e.AuthSvc.CreateAPIKey(e.Ctx, org.ID, "e2e-test-key")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.AuthToken = token

	project := domain.NewProject(uuid.NewString(), org.ID, "e2e-project", time.Now().UTC())
	if err := repository.NewProjectRepository(e.Pool).Create(e.Ctx, project); err != nil {
		e.T.Fatalf("failed to create project: %v", err)
	}
	e.ProjectID = project.ID
}

// RegisterSource registers an input source for the bootstrapped org and
// returns its id. Code sources are bound to the bootstrapped project,
// mirroring what `tesserad source add --project` enforces.
func (e *E2ETestEnv) RegisterSource(name string, kind domain.SourceKind, locator string) string {
	projectID := ""
	if kind == domain.SourceKindCodeFilesystem {
		projectID = e.ProjectID
	}
	src := domain.NewSource(uuid.NewString(), e.OrgID, projectID, name, kind, locator)
	if err := domain.ValidateSource(src); err != nil {
		e.T.Fatalf("invalid source %s: %v", name, err)
	}
	if err := e.SourceRepo.Create(e.Ctx, src); err != nil {
		e.T.Fatalf("failed to register source %s: %v", name, err)
	}
	return src.ID
}

// TriggerRun starts an index run over HTTP and returns the run id.
func (e *E2ETestEnv) TriggerRun(sourceID string, scope string) string {
	resp, err := e.Post("/index", map[string]string{
		"source_id": sourceID,
		"scope":     scope,
	}, e.AuthToken)
	if err != nil {
		e.T.Fatalf("failed to trigger run: %v", err)
	}
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		e.T.Fatalf("failed to parse trigger response: %v", err)
	}
	if out.RunID == "" {
		e.T.Fatal("trigger returned empty run id")
	}
	return out.RunID
}

// RunSnapshot is the run state the tests assert on.
type RunSnapshot struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Scope     string `json:"scope"`
	Processed int    `json:"processed"`
	Stored    int    `json:"stored"`
	Skipped   int    `json:"skipped"`
	Removed   int    `json:"removed"`
	Errors    []struct {
		Provider string `json:"provider"`
		Code     string `json:"code"`
		Message  string `json:"message"`
		UnitRef  string `json:"unit_ref"`
	} `json:"errors"`
}

// WaitForRun polls GET /runs/{id} until the run reaches a terminal state.
func (e *E2ETestEnv) WaitForRun(runID string) *RunSnapshot {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := e.Get("/runs/"+runID, e.AuthToken)
		if err != nil {
			e.T.Fatalf("failed to get run %s: %v", runID, err)
		}
		var run RunSnapshot
		if err := json.Unmarshal(resp.Data, &run); err != nil {
			e.T.Fatalf("failed to parse run response: %v", err)
		}
		switch run.State {
		case "completed", "failed", "cancelled":
			return &run
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("run %s did not finish within 30s", runID)
	return nil
}

// IndexAndWait triggers a run and waits for it to complete successfully.
func (e *E2ETestEnv) IndexAndWait(sourceID, scope string) *RunSnapshot {
	run := e.WaitForRun(e.TriggerRun(sourceID, scope))
	if run.State != "completed" {
		e.T.Fatalf("run finished in state %q, errors: %+v", run.State, run.Errors)
	}
	return run
}

// APIResponse is a decoded response: Data on success, Errors on failure.
type APIResponse struct {
	Data   json.RawMessage  `json:"data"`
	Status string           `json:"status"`
	Errors []api.ErrorEntry `json:"errors"`
}

// Get performs a GET request.
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// GetWithBody performs a GET request carrying a JSON body (the /context
// endpoint reads its request from the body).
func (e *E2ETestEnv) GetWithBody(path string, body any, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, body, authToken)
}

// Post performs a POST request.
func (e *E2ETestEnv) Post(path string, body any, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body any, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		msg := ""
		if len(apiResp.Errors) > 0 {
			msg = apiResp.Errors[0].Code + ": " + apiResp.Errors[0].Message
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return &apiResp, nil
}

// WriteFile creates a file under dir, creating parents as needed.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// startServer wires repositories, services, scheduler, and handlers the
// way `tesserad serve` does, minus migrations (already applied), S3, Sentry,
// and the cron trigger.
func (e *E2ETestEnv) startServer(t *testing.T, pool *pgxpool.Pool, port int) {
	fragmentRepo := repository.NewFragmentRepository(pool)
	edgeRepo := repository.NewEdgeRepository(pool)
	runRepo := repository.NewIndexRunRepository(pool)
	sourceRepo := repository.NewSourceRepository(pool)
	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(orgRepo, apiKeyRepo, uuidGen)

	provider := embed.NewNoopProvider(embeddingDimension)
	cache, err := embed.NewCache(128)
	if err != nil {
		t.Fatalf("failed to create embedding cache: %v", err)
	}
	batcher := embed.NewBatcher(provider, embed.BatcherOptions{
		BatchSize:   16,
		Concurrency: 2,
		Cache:       cache,
	})

	searchSvc := service.NewSearchService(fragmentRepo, batcher)
	graphSvc := service.NewGraphService(fragmentRepo, edgeRepo, 5)
	contextSvc := service.NewContextService(fragmentRepo, searchSvc, graphSvc, 4000)
	statsSvc := service.NewStatsService(fragmentRepo, edgeRepo, runRepo)
	runSvc := service.NewRunService(runRepo)
	fragmentSvc := service.NewFragmentService(fragmentRepo, graphSvc)

	sched := scheduler.NewScheduler(sourceRepo, fragmentRepo, runRepo, txRunner,
		source.NewFactory(e.S3Client), batcher, uuidGen, scheduler.Options{InFlightLimit: 16})

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    authSvc,
		IndexHandler:     handlers.NewIndexHandler(sched),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ContextHandler:   handlers.NewContextHandler(contextSvc),
		StatsHandler:     handlers.NewStatsHandler(statsSvc),
		RunsHandler:      handlers.NewRunsHandler(runSvc, sched),
		FragmentsHandler: handlers.NewFragmentsHandler(fragmentSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	e.ServerURL = serverURL
	e.Scheduler = sched
	e.AuthSvc = authSvc
	e.SourceRepo = sourceRepo
	e.ServerCloser = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
