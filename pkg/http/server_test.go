package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireprep-server/pkg/auth"
	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/report"
	"hireprep-server/pkg/session"
	"hireprep-server/pkg/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeSessions records lifecycle calls.
type fakeSessions struct {
	created  []session.InterviewConfig
	userIDs  []string
	startErr error
	started  []string
	stopped  []string
	state    session.State
}

func (f *fakeSessions) Create(userID string, cfg session.InterviewConfig) (string, error) {
	f.created = append(f.created, cfg)
	f.userIDs = append(f.userIDs, userID)
	return "session-1", nil
}

func (f *fakeSessions) Start(id string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeSessions) Stop(id string) error {
	if id == "missing" {
		return apperrors.ErrSessionNotFound
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeSessions) State(id string) (session.State, error) {
	if id == "missing" {
		return session.State{}, apperrors.ErrSessionNotFound
	}
	return f.state, nil
}

// fakeHistory serves a static record list.
type fakeHistory struct {
	records    []*session.InterviewSession
	listedFor  []string
	latestsFor []string
}

func (f *fakeHistory) List(ctx context.Context, userID string) ([]*session.InterviewSession, error) {
	f.listedFor = append(f.listedFor, userID)
	return f.records, nil
}

func (f *fakeHistory) Latest(ctx context.Context, userID string) (*session.InterviewSession, error) {
	f.latestsFor = append(f.latestsFor, userID)
	if len(f.records) == 0 {
		return nil, nil
	}
	return f.records[0], nil
}

// fakeReports returns canned coaching artifacts.
type fakeReports struct {
	modules []report.CorrectionModule
	drills  []report.DrillItem
}

func (f *fakeReports) CorrectionModules(ctx context.Context, history []*session.InterviewSession) ([]report.CorrectionModule, error) {
	return f.modules, nil
}

func (f *fakeReports) CorrectionDrills(ctx context.Context, modules []report.CorrectionModule) ([]report.DrillItem, error) {
	return f.drills, nil
}

type serverFixture struct {
	server   *httptest.Server
	auth     *auth.Service
	sessions *fakeSessions
	history  *fakeHistory
	reports  *fakeReports
	token    string
	userID   string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger := quietLogger()

	users, err := store.NewUserStore(filepath.Join(t.TempDir(), "users.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })

	authService := auth.NewService(users, "test-secret", "hireprep", time.Hour, logger)

	fix := &serverFixture{
		auth:     authService,
		sessions: &fakeSessions{state: session.State{TotalQuestions: 3}},
		history:  &fakeHistory{},
		reports:  &fakeReports{},
	}

	srv := NewServer(logger, &Config{Port: 0, EnableMetrics: true}, Deps{
		AuthService: authService,
		Sessions:    fix.sessions,
		History:     fix.history,
		Reports:     fix.reports,
	})

	fix.server = httptest.NewServer(srv.Handler())
	t.Cleanup(fix.server.Close)

	// Seed an account and log in.
	user, err := authService.Register(context.Background(), "Ada", "ada@example.com", "pw")
	require.NoError(t, err)
	result, err := authService.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	fix.token = result.Token
	fix.userID = strconv.FormatInt(user.ID, 10)

	return fix
}


func (f *serverFixture) do(t *testing.T, method, path string, body interface{}, authed bool) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthEndpoint(t *testing.T) {
	fix := newServerFixture(t)

	resp := fix.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpointExposed(t *testing.T) {
	fix := newServerFixture(t)

	resp := fix.do(t, http.MethodGet, "/metrics", nil, false)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hireprep_sessions_active")
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	fix := newServerFixture(t)

	resp := fix.do(t, http.MethodPost, "/api/register", map[string]string{
		"name": "Grace", "email": "grace@example.com", "password": "pw",
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]interface{}
	decodeBody(t, resp, &created)
	assert.Equal(t, "grace@example.com", created["email"])

	// Duplicate email.
	resp = fix.do(t, http.MethodPost, "/api/register", map[string]string{
		"name": "Other", "email": "grace@example.com", "password": "pw",
	}, false)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var dup map[string]string
	decodeBody(t, resp, &dup)
	assert.Equal(t, "Email already exists.", dup["error"])

	// Login.
	resp = fix.do(t, http.MethodPost, "/api/login", map[string]string{
		"email": "grace@example.com", "password": "pw",
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login map[string]interface{}
	decodeBody(t, resp, &login)
	assert.NotEmpty(t, login["token"])

	// Wrong password.
	resp = fix.do(t, http.MethodPost, "/api/login", map[string]string{
		"email": "grace@example.com", "password": "nope",
	}, false)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	fix := newServerFixture(t)

	resp := fix.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"duration": 10}, false)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	fix := newServerFixture(t)

	resp := fix.do(t, http.MethodPost, "/api/sessions", session.InterviewConfig{
		Industry: "Fintech", Duration: 20,
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	decodeBody(t, resp, &created)
	assert.Equal(t, "session-1", created["session_id"])
	require.Len(t, fix.sessions.userIDs, 1)
	assert.Equal(t, fix.userID, fix.sessions.userIDs[0])

	resp = fix.do(t, http.MethodPost, "/api/sessions/session-1/start", nil, true)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"session-1"}, fix.sessions.started)

	resp = fix.do(t, http.MethodGet, "/api/sessions/session-1", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state session.State
	decodeBody(t, resp, &state)
	assert.Equal(t, 3, state.TotalQuestions)

	resp = fix.do(t, http.MethodPost, "/api/sessions/session-1/stop", nil, true)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"session-1"}, fix.sessions.stopped)
}

func TestSessionStartErrors(t *testing.T) {
	fix := newServerFixture(t)

	fix.sessions.startErr = apperrors.ErrSessionNotFound
	resp := fix.do(t, http.MethodPost, "/api/sessions/ghost/start", nil, true)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	fix.sessions.startErr = apperrors.Wrap(apperrors.ErrMediaDenied, "no capture client attached")
	resp = fix.do(t, http.MethodPost, "/api/sessions/session-1/start", nil, true)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	fix.sessions.startErr = apperrors.ErrSessionAlreadyExist
	resp = fix.do(t, http.MethodPost, "/api/sessions/session-1/start", nil, true)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHistoryEndpoints(t *testing.T) {
	fix := newServerFixture(t)

	// Empty history.
	resp := fix.do(t, http.MethodGet, "/api/history", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []*session.InterviewSession
	decodeBody(t, resp, &records)
	assert.Empty(t, records)

	resp = fix.do(t, http.MethodGet, "/api/history/latest", nil, true)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Populated history is scoped to the authenticated user.
	fix.history.records = []*session.InterviewSession{{ID: "s-9"}}
	resp = fix.do(t, http.MethodGet, "/api/history/latest", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest session.InterviewSession
	decodeBody(t, resp, &latest)
	assert.Equal(t, "s-9", latest.ID)
	assert.Contains(t, fix.history.latestsFor, fix.userID)
}

func TestModulesAndDrillsEndpoints(t *testing.T) {
	fix := newServerFixture(t)
	fix.reports.modules = []report.CorrectionModule{{ID: "1", Title: "VERBAL PACING"}}
	fix.reports.drills = []report.DrillItem{{ID: "d1", Title: "LATENCY", Source: "VERBAL PACING"}}

	resp := fix.do(t, http.MethodPost, "/api/modules", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var modules []report.CorrectionModule
	decodeBody(t, resp, &modules)
	require.Len(t, modules, 1)
	assert.Equal(t, "VERBAL PACING", modules[0].Title)

	resp = fix.do(t, http.MethodPost, "/api/drills", modules, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var drills []report.DrillItem
	decodeBody(t, resp, &drills)
	require.Len(t, drills, 1)
	assert.Equal(t, "LATENCY", drills[0].Title)
}
