package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandops/internal/cache"
	"commandops/internal/config"
	"commandops/internal/db"
	"commandops/internal/engine"
	"commandops/internal/engine/auth"
	"commandops/internal/logging"
	"commandops/internal/migrate"
	"commandops/internal/ratelimit"
	"commandops/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	auth   auth.Service
	close  func()
}

func (s *testServer) Close() { s.close() }

// bearer returns request headers authenticating as ownerID.
func (s *testServer) bearer(t *testing.T, ownerID string) map[string]string {
	t.Helper()
	token, err := s.auth.IssueToken(ownerID, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(config.Database{Driver: "sqlite"}, workspace)
	require.NoError(t, err)
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)

	cfg := config.Default()
	if limiter == nil {
		limiter = ratelimit.NewMemory(cfg.RateLimit)
	}
	e := engine.New(conn, cache.NewMemory(time.Minute), logging.Discard())
	svc := auth.Service{Repo: repo.Repo{DB: conn}, JWTSecret: "test-secret"}
	handler, err := New(Config{
		Engine:   e,
		Auth:     svc,
		Limiter:  limiter,
		BasePath: "/v1",
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		auth:   svc,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type envelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndOpenAPIAreOpen(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(data, &spec))
	schemes := spec["components"].(map[string]any)["securitySchemes"].(map[string]any)
	assert.Contains(t, schemes, "bearerAuth")
	assert.Contains(t, schemes, "apiKeyAuth")
}

func TestAuthenticationRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/quests", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "authentication", body.Code)
	assert.False(t, body.Retryable)

	resp, _ = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/quests", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/quests", nil, map[string]string{"X-Api-Key": "cmdops_unknown"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthentication(t *testing.T) {
	ts := newTestServer(t, nil)
	_, secret, err := ts.auth.CreateAPIKey(context.Background(), "alice", "ci")
	require.NoError(t, err)

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/missions",
		map[string]any{"title": "Ship v1"}, map[string]string{"X-Api-Key": secret})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	m := decode[map[string]any](t, data)
	assert.Equal(t, "alice", m["owner_id"])
	assert.Equal(t, "ACTIVE", m["status"])
}

func TestActivationLimitOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.bearer(t, "alice")

	var ids []string
	for i := 0; i < 5; i++ {
		resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests", map[string]any{"title": "quest"}, h)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
		ids = append(ids, decode[map[string]any](t, data)["id"].(string))
	}
	for _, id := range ids[:3] {
		resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests/"+id+"/activate", nil, h)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	}

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests/"+ids[3]+"/activate", map[string]any{}, h)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "business_logic", decodeError(t, data).Code)

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests/"+ids[3]+"/activate",
		map[string]any{"emergency": true, "first_tactical_step": "open the laptop"}, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	res := decode[TransitionResult](t, data)
	require.NotNil(t, res.Admission)
	assert.True(t, res.Admission.IsEmergencyDeploy)
	assert.Equal(t, 4, res.Admission.ActiveCount)
	assert.Equal(t, "open the laptop", res.Quest.FirstTacticalStep)

	resp, data = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v1/quests/"+ids[4]+"/status",
		map[string]any{"status": "active", "emergency": true}, h)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decodeError(t, data).Message, "emergency ceiling")
}

func TestActionsAcceptMissingBody(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.bearer(t, "alice")

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/missions", map[string]any{"title": "Launch"}, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	missionID := decode[map[string]any](t, data)["id"].(string)

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests",
		map[string]any{"title": "write docs", "mission_id": missionID}, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	questID := decode[map[string]any](t, data)["id"].(string)

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests/"+questID+"/activate", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	res := decode[TransitionResult](t, data)
	assert.Equal(t, "ACTIVE", string(res.Quest.Status))
	require.NotNil(t, res.Admission)
	assert.False(t, res.Admission.IsEmergencyDeploy)

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests/"+questID+"/complete", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "COMPLETED", decode[map[string]any](t, data)["status"])

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/missions/"+missionID+"/archive", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "ARCHIVED", decode[map[string]any](t, data)["status"])
}

func TestValidationErrorDetails(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.bearer(t, "alice")

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests", map[string]any{"title": "  "}, h)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "validation", body.Code)
	fields, ok := body.Details["fields"].(map[string]any)
	require.True(t, ok, string(data))
	assert.Contains(t, fields, "title")

	resp, data = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v1/quests/whatever/status", map[string]any{"status": "DONE"}, h)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decodeError(t, data).Code)
}

func TestOwnerIsolation(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.bearer(t, "alice")
	bob := ts.bearer(t, "bob")

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests", map[string]any{"title": "secret"}, alice)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[map[string]any](t, data)["id"].(string)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/quests/"+id, nil, bob)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Code)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/quests", nil, bob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[QuestList](t, data).Items)
}

func TestMissionArchiveAndDeleteOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.bearer(t, "alice")

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/missions", map[string]any{"title": "Launch"}, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	missionID := decode[map[string]any](t, data)["id"].(string)

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests",
		map[string]any{"title": "write docs", "mission_id": missionID}, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	questID := decode[map[string]any](t, data)["id"].(string)

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/missions/"+missionID+"/archive", nil, h)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decodeError(t, data).Message, "1 pending quest")

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests/"+questID+"/complete",
		map[string]any{"debrief_notes": "done <script>x</script>", "debrief_satisfaction": 4}, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.NotContains(t, decode[map[string]any](t, data)["debrief_notes"], "<script>")

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/missions/"+missionID+"/archive",
		map[string]any{"after_action_report": "went well"}, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	m := decode[map[string]any](t, data)
	assert.Equal(t, "ARCHIVED", m["status"])
	assert.NotEmpty(t, m["archived_at"])

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/archive/quests?satisfaction=4", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	page := decode[map[string]any](t, data)
	assert.EqualValues(t, 1, page["total"])

	resp, data = doJSON(t, ts.client, http.MethodDelete, ts.URL+"/v1/missions/"+missionID+"?delete_quests=true", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	del := decode[DeleteMissionResult](t, data)
	assert.EqualValues(t, 1, del.QuestsDeleted)

	resp, _ = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/quests/"+questID, nil, h)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimitEnvelope(t *testing.T) {
	rules := config.RateLimit{Window: time.Minute, Default: 100, Actions: map[string]int{"feedback.create": 1}}
	ts := newTestServer(t, ratelimit.NewMemory(rules))
	h := ts.bearer(t, "alice")

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/feedback", map[string]any{"message": "nice"}, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/feedback", map[string]any{"message": "again"}, h)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "rate_limit", body.Code)
	assert.Greater(t, body.Details["retry_after_seconds"], float64(0))

	// Other owners have their own budget.
	resp, _ = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/feedback", map[string]any{"message": "hi"}, ts.bearer(t, "bob"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestLimiterFailureAllowsRequest(t *testing.T) {
	ts := newTestServer(t, failingLimiter{})
	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/stats", nil, ts.bearer(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
}

func TestEventsExposeDecodedPayload(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.bearer(t, "alice")

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/quests", map[string]any{"title": "one", "is_critical": true}, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/events?limit=10", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	list := decode[EventList](t, data)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "quest.created", list.Items[0].Type)
	assert.Equal(t, "quest", list.Items[0].EntityKind)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/analytics", nil, h)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	a := decode[map[string]any](t, data)
	assert.EqualValues(t, 0, a["active_count"])
}
