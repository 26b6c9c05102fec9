package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/inboxd/internal/answer"
	"github.com/fyrsmithlabs/inboxd/internal/index"
	"github.com/fyrsmithlabs/inboxd/internal/mail"
	syncpkg "github.com/fyrsmithlabs/inboxd/internal/sync"
)

type stubSyncer struct {
	runID    string
	startErr error
	msgs     []*mail.Message
	listErr  error
}

func (s *stubSyncer) Start(context.Context) (string, error) {
	return s.runID, s.startErr
}

func (s *stubSyncer) Relevant(context.Context, int) ([]*mail.Message, error) {
	return s.msgs, s.listErr
}

type stubAnswerer struct {
	resp    *answer.Response
	summary string
	err     error
}

func (s *stubAnswerer) Answer(context.Context, string, string) (*answer.Response, error) {
	return s.resp, s.err
}

func (s *stubAnswerer) Summary(context.Context, int) (string, error) {
	return s.summary, s.err
}

func newTestServer(t *testing.T, status *syncpkg.Status, syncer Syncer, answerer Answerer) *Server {
	t.Helper()
	if status == nil {
		status = syncpkg.NewStatus()
	}
	s, err := NewServer(Config{}, status, syncer, answerer, true, nil)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	status := syncpkg.NewStatus()
	status.Begin()
	status.SetProgress(120)
	s := newTestServer(t, status, nil, nil)

	rec := do(s, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsAuthenticated)
	assert.Equal(t, syncpkg.StateSyncing, resp.State)
	assert.Equal(t, 120, resp.Progress)
	assert.False(t, resp.Ready)
}

func TestSyncAccepted(t *testing.T) {
	s := newTestServer(t, nil, &stubSyncer{runID: "run-1"}, nil)

	rec := do(s, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
}

func TestSyncConflict(t *testing.T) {
	s := newTestServer(t, nil, &stubSyncer{startErr: syncpkg.ErrSyncInProgress}, nil)

	rec := do(s, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncUnconfigured(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := do(s, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAsk(t *testing.T) {
	answerer := &stubAnswerer{resp: &answer.Response{
		Answer: "Alice sent the budget.",
		Sources: []index.Hit{{
			Sender:   "alice@example.com",
			Subject:  "Budget",
			Date:     time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
			Distance: 0.12,
		}},
	}}
	s := newTestServer(t, nil, nil, answerer)

	rec := do(s, http.MethodPost, "/api/v1/ask", `{"question":"who sent the budget?"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "who sent the budget?", resp.Question)
	assert.Equal(t, "Alice sent the budget.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "alice@example.com", resp.Sources[0].Sender)
	assert.Equal(t, "2026-08-20", resp.Sources[0].Date)
}

func TestAskValidation(t *testing.T) {
	s := newTestServer(t, nil, nil, &stubAnswerer{resp: &answer.Response{}})

	rec := do(s, http.MethodPost, "/api/v1/ask", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, "/api/v1/ask", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskUnconfigured(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)

	rec := do(s, http.MethodPost, "/api/v1/ask", `{"question":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRelevant(t *testing.T) {
	syncer := &stubSyncer{msgs: []*mail.Message{{
		ID:      "m1",
		Sender:  "alice@example.com",
		Subject: "Budget",
		Date:    time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Unread:  true,
		Account: mail.AccountWork,
	}}}
	s := newTestServer(t, nil, syncer, nil)

	rec := do(s, http.MethodGet, "/api/v1/emails/relevant?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var out []EmailSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
	assert.True(t, out[0].Unread)
	assert.Equal(t, "work", out[0].AccountType)
}

func TestRelevantBadLimit(t *testing.T) {
	s := newTestServer(t, nil, &stubSyncer{}, nil)

	rec := do(s, http.MethodGet, "/api/v1/emails/relevant?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/emails/relevant?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, nil, nil, &stubAnswerer{summary: "Quiet week."})

	rec := do(s, http.MethodGet, "/api/v1/summary?days=14", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 14, resp.Days)
	assert.Equal(t, "Quiet week.", resp.Summary)
}
