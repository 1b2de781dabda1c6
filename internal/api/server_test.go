package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
	"github.com/p-blackswan/agent-ledger-indexer/internal/detail"
	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
	"github.com/p-blackswan/agent-ledger-indexer/internal/health"
	"github.com/p-blackswan/agent-ledger-indexer/internal/metrics"
	"github.com/p-blackswan/agent-ledger-indexer/internal/projection"
)

const (
	alice = "ST356P5YEXBJC1ZANBWBNR0N0X7NT8AV7FZ017K55"
	bob   = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
)

type fakeProjection struct {
	snap   *projection.Snapshot
	err    error
	builds atomic.Int32
}

func (f *fakeProjection) GetOrRebuild(ctx context.Context) (*projection.Snapshot, error) {
	f.builds.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeProjection) Agents(ctx context.Context) ([]projection.Agent, error) {
	snap, err := f.GetOrRebuild(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Agents(), nil
}

func (f *fakeProjection) Tasks(ctx context.Context) ([]projection.Task, error) {
	snap, err := f.GetOrRebuild(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tasks(), nil
}

func (f *fakeProjection) Curves(ctx context.Context) ([]projection.Curve, error) {
	snap, err := f.GetOrRebuild(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Curves(), nil
}

type fakeDetails struct {
	agent     *detail.AgentDetail
	err       error
	quoteSide detail.Side
	quoteAmt  string
}

func (f *fakeDetails) Agent(ctx context.Context, principal string) (*detail.AgentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.agent, nil
}

func (f *fakeDetails) Task(ctx context.Context, id uint64) (*detail.TaskDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &detail.TaskDetail{ID: id, Bids: []detail.Bid{}}, nil
}

func (f *fakeDetails) Curve(ctx context.Context, id uint64) (*detail.CurveDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &detail.CurveDetail{ID: id}, nil
}

func (f *fakeDetails) Quote(ctx context.Context, id uint64, side detail.Side, amount uint256.Int) (*detail.Quote, error) {
	f.quoteSide, f.quoteAmt = side, amount.Dec()
	if f.err != nil {
		return nil, f.err
	}
	return &detail.Quote{CurveID: id, Side: side, AmountIn: amount.Dec()}, nil
}

func (f *fakeDetails) Balance(ctx context.Context, id uint64, holder string) (*detail.Balance, error) {
	return &detail.Balance{CurveID: id, Holder: holder, Balance: "0"}, nil
}

func (f *fakeDetails) Stats(ctx context.Context, snap *projection.Snapshot) *detail.Stats {
	return &detail.Stats{Indexed: detail.NewIndexedSummary(snap)}
}

type kv = map[string]clarity.Value

func rec(tag string, fields kv) clarity.Record {
	r := clarity.Record{"event": clarity.StringValue(tag)}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func testSnapshot() *projection.Snapshot {
	u := clarity.UintValue
	p := clarity.PrincipalValue
	return projection.Fold(projection.Streams{
		Registry: []clarity.Record{
			rec("agent-registered", kv{"owner": p(alice), "name": clarity.StringValue("scout"), "price-per-task": u(1_000_000), "registered-at": u(100)}),
			rec("agent-registered", kv{"owner": p(bob), "name": clarity.StringValue("idle"), "price-per-task": u(5)}),
		},
		Reputation: []clarity.Record{
			rec("agent-rated", kv{"agent": p(alice), "score": u(4)}),
			rec("agent-rated", kv{"agent": p(alice), "score": u(5)}),
		},
		TaskBoard: []clarity.Record{
			rec("task-posted", kv{"task-id": u(0), "poster": p(bob), "title": clarity.StringValue("summarize"), "bounty": u(5_000_000)}),
		},
		Launchpad: []clarity.Record{
			rec("curve-launched", kv{"curve-id": u(1), "creator": p(alice), "name": clarity.StringValue("Scout"), "symbol": clarity.StringValue("SCT")}),
			rec("token-bought", kv{"curve-id": u(1), "new-stx-reserve": u(99_000000), "new-tokens-sold": u(9_803_921_568_627)}),
		},
	})
}

type testEnv struct {
	app     *fiber.App
	proj    *fakeProjection
	details *fakeDetails
	checker *health.Checker
}

func setup(t *testing.T, rl RateLimitConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	env := &testEnv{
		proj:    &fakeProjection{snap: testSnapshot()},
		details: &fakeDetails{agent: &detail.AgentDetail{Principal: alice, Name: "scout", Capabilities: []string{}}},
		checker: health.NewChecker(logger),
	}
	srv := NewServer(ServerConfig{
		CORSOrigins: "*",
		RateLimit:   rl,
		CacheTTL:    time.Minute,
	}, Deps{
		Projection: env.proj,
		Details:    env.details,
		Checker:    env.checker,
		Metrics:    metrics.New(),
	}, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	env.app = srv.App()
	return env
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func problemOf(t *testing.T, body []byte) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestAgents_SerializedShape(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/agents")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))
	assert.Contains(t, string(body), `"pricePerTask":"1000000"`)

	var agents []map[string]any
	require.NoError(t, json.Unmarshal(body, &agents))
	require.Len(t, agents, 2)
	assert.Equal(t, alice, agents[0]["principal"])
	assert.Equal(t, float64(1), agents[0]["status"])
	assert.Equal(t, float64(100), agents[0]["registeredAt"])
	assert.Equal(t, false, agents[0]["hasVault"])

	rep, ok := agents[0]["reputation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(9), rep["totalScore"])
	assert.Equal(t, float64(2), rep["ratingCount"])
	assert.Equal(t, float64(0), rep["tasksCompleted"])

	assert.Nil(t, agents[1]["reputation"])
}

func TestCollections_BoundaryCache(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, _ := get(t, env.app, "/api/agents")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, env.app, "/api/agents")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int32(1), env.proj.builds.Load())
}

func TestCollections_UnavailableNotCached(t *testing.T) {
	env := setup(t, RateLimitConfig{})
	env.proj.err = context.DeadlineExceeded

	resp, body := get(t, env.app, "/api/tasks")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "ledger_unavailable", problemOf(t, body).Type)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	get(t, env.app, "/api/tasks")
	assert.Equal(t, int32(2), env.proj.builds.Load())
}

func TestTasks_Shape(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/tasks")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tasks []map[string]any
	require.NoError(t, json.Unmarshal(body, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "5000000", tasks[0]["bounty"])
	assert.Equal(t, float64(1), tasks[0]["status"])
	assert.Contains(t, tasks[0], "assignedTo")
	assert.Nil(t, tasks[0]["assignedTo"])
	assert.Equal(t, float64(0), tasks[0]["bidCount"])
}

func TestCurves_Shape(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/curves")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var curves []CurveDTO
	require.NoError(t, json.Unmarshal(body, &curves))
	require.Len(t, curves, 1)
	assert.Equal(t, "99000000", curves[0].StxReserve)
	assert.Equal(t, "9803921568627", curves[0].TokensSold)
	assert.Equal(t, uint64(1), curves[0].TradeCount)
	assert.False(t, curves[0].Graduated)
}

func TestLeaderboard(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/leaderboard?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []LeaderboardEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, alice, entries[0].Agent.Principal)
	assert.Equal(t, 90.0, entries[0].Score)
	assert.Equal(t, 4.5, entries[0].AverageScore)

	resp, body = get(t, env.app, "/api/leaderboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &entries))
	assert.Len(t, entries, 2)

	resp, _ = get(t, env.app, "/api/leaderboard?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentDetail_ErrorMapping(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/agents/"+alice)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d detail.AgentDetail
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Equal(t, "scout", d.Name)

	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("agent x: %w", perrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("agent x: %w: boom", perrors.ErrUnavailable), http.StatusServiceUnavailable, "ledger_unavailable"},
		{fmt.Errorf("%w: bad principal", perrors.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{errors.New("surprise"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		env.details.err = tc.err
		resp, body := get(t, env.app, "/api/agents/"+alice)
		assert.Equal(t, tc.status, resp.StatusCode, tc.kind)
		p := problemOf(t, body)
		assert.Equal(t, tc.kind, p.Type)
		assert.Equal(t, tc.status, p.Status)
		assert.Equal(t, "/api/agents/"+alice, p.Instance)
	}
}

func TestDetail_BadID(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	for _, path := range []string{"/api/tasks/abc", "/api/curves/-1", "/api/curves/x/quote?amount=1"} {
		resp, body := get(t, env.app, path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, "invalid_input", problemOf(t, body).Type)
	}

	resp, body := get(t, env.app, "/api/tasks/12")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var task detail.TaskDetail
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, uint64(12), task.ID)
}

func TestQuote(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, _ := get(t, env.app, "/api/curves/1/quote?side=sell&amount=340282366920938463463374607431768211455")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, detail.Sell, env.details.quoteSide)
	assert.Equal(t, "340282366920938463463374607431768211455", env.details.quoteAmt)

	resp, _ = get(t, env.app, "/api/curves/1/quote?amount=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, detail.Buy, env.details.quoteSide)

	for _, q := range []string{"?side=hold&amount=5", "?side=buy", "?amount=-3", "?amount=1.5"} {
		resp, _ = get(t, env.app, "/api/curves/1/quote"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestBalance(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/curves/3/balance/"+alice)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b detail.Balance
	require.NoError(t, json.Unmarshal(body, &b))
	assert.Equal(t, alice, b.Holder)
	assert.Equal(t, uint64(3), b.CurveID)
}

func TestStats(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/api/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st map[string]any
	require.NoError(t, json.Unmarshal(body, &st))
	indexed, ok := st["indexed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), indexed["agents"])
	assert.Equal(t, "5000000", indexed["openBounty"])
	assert.Equal(t, "99000000", indexed["totalStxReserve"])

	env.proj.err = context.Canceled
	resp, body = get(t, env.app, "/api/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Nil(t, st["indexed"])
}

func TestProbes(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, body := get(t, env.app, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, _ = get(t, env.app, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.checker.Register("ledger", func(ctx context.Context) health.Status { return health.StatusDown })
	resp, body = get(t, env.app, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"ledger":"down"`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	get(t, env.app, "/api/agents")
	resp, body := get(t, env.app, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{route="/api/agents",status="200"} 1`)
}

func TestRequestID(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	resp, _ := get(t, env.app, "/healthz")
	minted := resp.Header.Get("X-Request-ID")
	_, err := uuid.Parse(minted)
	assert.NoError(t, err)

	want := uuid.New().String()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", want)
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, want, resp.Header.Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	env := setup(t, RateLimitConfig{})

	req, _ := http.NewRequest(http.MethodGet, "/api/curves", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	env := setup(t, RateLimitConfig{RPS: 1, Burst: 1})

	resp, _ := get(t, env.app, "/api/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, env.app, "/api/stats")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limit_exceeded", problemOf(t, body).Type)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// probes are exempt
	for range 3 {
		resp, _ = get(t, env.app, "/healthz")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRateLimiter_RefillAndSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(RateLimitConfig{RPS: 2, Burst: 2})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "buckets are per client")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))

	now = now.Add(bucketIdle + time.Second)
	assert.Equal(t, 2, rl.sweep())
	assert.Equal(t, 0, rl.sweep())

	rl.close()
	rl.close()
}
