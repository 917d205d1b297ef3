package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recognition-review-backend/pkg/config"
	"recognition-review-backend/pkg/database"
	"recognition-review-backend/pkg/logging"
	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

type testServer struct {
	t      *testing.T
	app    *App
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Environment:      "test",
		Port:             "0",
		UseLocalDB:       true,
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		AllowedOrigins:   []string{"*"},
		LogLevel:         "error",
		CalendarTimezone: "UTC",
		ReviewMaxRetries: 3,
	}
	app, err := NewApp(cfg, database.NewLocalStore(), logging.Discard())
	require.NoError(t, err)
	return &testServer{t: t, app: app, router: NewRouter(app)}
}

func (s *testServer) token(actor *models.Actor) string {
	s.t.Helper()
	tok, _, err := s.app.JWT.GenerateAccessToken(actor)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path string, actor *models.Actor, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(actor))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

var compliance = &models.Actor{ID: "osas-1", Role: models.RoleCompliance}

func (s *testServer) registerOrg() (string, *models.Actor, *models.Actor) {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/owners", compliance, map[string]string{
		"kind": "organization", "name": "Chess Club",
	})
	require.Equal(s.t, http.StatusCreated, code)
	var owner models.Owner
	decodeData(s.t, env, &owner)

	officer := &models.Actor{ID: "officer-1", Role: models.RoleOfficer, Owner: models.Organization(owner.ID)}
	adviser := &models.Actor{ID: "adviser-1", Role: models.RoleAdviser, Owner: models.Organization(owner.ID)}
	return owner.ID, officer, adviser
}

func (s *testServer) submit(actor *models.Actor, ownerID, typ string) string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/documents", actor, map[string]string{
		"owner_id": ownerID, "document_type": typ, "file_path": "uploads/" + typ + ".pdf",
	})
	require.Equal(s.t, http.StatusCreated, code, "%+v", env.Error)
	var d models.Document
	decodeData(s.t, env, &d)
	return d.ID
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	var health map[string]interface{}
	decodeData(t, env, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "local", health["database"])
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AuthRequired(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodGet, "/api/batches", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_DecisionFlowAndErrorMapping(t *testing.T) {
	s := newTestServer(t)
	ownerID, officer, adviser := s.registerOrg()
	docID := s.submit(officer, ownerID, "letter_of_intent")
	decisionPath := "/api/documents/" + docID + "/decision"

	code, env := s.do(http.MethodPost, decisionPath, officer, map[string]string{"role": "adviser", "outcome": "approve"})
	assert.Equal(t, http.StatusForbidden, code, "officers never decide")

	code, env = s.do(http.MethodPost, decisionPath, compliance, map[string]string{"role": "compliance", "outcome": "approve"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	code, env = s.do(http.MethodPost, decisionPath, adviser, map[string]string{"role": "adviser", "outcome": "reject"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "MISSING_REASON", env.Error.Code)

	code, env = s.do(http.MethodPost, decisionPath, adviser, map[string]string{
		"role": "adviser", "outcome": "reject", "reason": "unsigned", "deadline": "soon",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_DEADLINE", env.Error.Code)

	code, env = s.do(http.MethodPost, decisionPath, adviser, map[string]string{"role": "adviser", "outcome": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code, "validator rejects unknown outcomes")

	code, env = s.do(http.MethodPost, decisionPath, adviser, map[string]interface{}{"role": "adviser", "outcome": "approve", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, code, "unknown fields are rejected")

	code, env = s.do(http.MethodPost, "/api/documents/nope/decision", adviser, map[string]string{"role": "adviser", "outcome": "approve"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", env.Error.Code)

	code, env = s.do(http.MethodPost, decisionPath, adviser, map[string]string{"role": "adviser", "outcome": "approve"})
	require.Equal(t, http.StatusOK, code)
	var result struct {
		Document           models.Document          `json:"document"`
		RecognitionStatus  models.RecognitionStatus `json:"recognition_status"`
		RecognitionChanged bool                     `json:"recognition_changed"`
	}
	decodeData(t, env, &result)
	assert.Equal(t, models.DecisionApproved, result.Document.AdviserDecision)
	assert.Equal(t, models.Unrecognized, result.RecognitionStatus)

	code, _ = s.do(http.MethodPost, decisionPath, compliance, map[string]string{"role": "compliance", "outcome": "approve"})
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_ContentTypeRequired(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/owners", strings.NewReader(`{"kind":"council","name":"x"}`))
	req.Header.Set("Authorization", "Bearer "+s.token(compliance))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Checklist(t *testing.T) {
	s := newTestServer(t)
	ownerID, officer, _ := s.registerOrg()
	s.submit(officer, ownerID, "action_plan")

	code, env := s.do(http.MethodGet, "/api/owners/organizations/"+ownerID+"/recognition", officer, nil)
	require.Equal(t, http.StatusOK, code)
	var cl struct {
		RecognitionStatus models.RecognitionStatus `json:"recognition_status"`
		RequiredCount     int                      `json:"required_count"`
		Missing           []string                 `json:"missing"`
	}
	decodeData(t, env, &cl)
	assert.Equal(t, models.Unrecognized, cl.RecognitionStatus)
	assert.Equal(t, 11, cl.RequiredCount)
	assert.Len(t, cl.Missing, 10)

	code, _ = s.do(http.MethodGet, "/api/owners/councils/"+ownerID+"/recognition", compliance, nil)
	assert.Equal(t, http.StatusNotFound, code, "kind must match the stored owner")

	outsider := &models.Actor{ID: "officer-2", Role: models.RoleOfficer, Owner: models.Organization("other")}
	code, _ = s.do(http.MethodGet, "/api/owners/organizations/"+ownerID+"/recognition", outsider, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/owners/clubs/"+ownerID+"/recognition", compliance, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_RecomputeAndStage(t *testing.T) {
	s := newTestServer(t)
	ownerID, officer, _ := s.registerOrg()

	code, _ := s.do(http.MethodPost, "/api/owners/organizations/"+ownerID+"/recognition/recompute", officer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(http.MethodPost, "/api/owners/organizations/"+ownerID+"/recognition/recompute", compliance, nil)
	require.Equal(t, http.StatusOK, code)
	var out map[string]interface{}
	decodeData(t, env, &out)
	assert.Equal(t, "unrecognized", out["recognition_status"])

	code, env = s.do(http.MethodPut, "/api/owners/organizations/"+ownerID+"/stage", compliance, map[string]string{"lifecycle_stage": "established"})
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &out)
	assert.Equal(t, "established", out["lifecycle_stage"])

	code, _ = s.do(http.MethodPut, "/api/owners/organizations/"+ownerID+"/stage", compliance, map[string]string{"lifecycle_stage": "ancient"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_BatchQueue(t *testing.T) {
	s := newTestServer(t)
	ownerID, officer, adviser := s.registerOrg()

	code, env := s.do(http.MethodPost, "/api/batches", officer, map[string]string{"owner_id": ownerID, "title": "Open House"})
	require.Equal(t, http.StatusCreated, code)
	var batch models.EventApprovalBatch
	decodeData(t, env, &batch)

	code, env = s.do(http.MethodPost, "/api/documents", officer, map[string]string{
		"owner_id": ownerID, "batch_id": batch.ID, "document_type": "activity_proposal", "file_path": "p.pdf",
	})
	require.Equal(t, http.StatusCreated, code)
	var d models.Document
	decodeData(t, env, &d)

	code, _ = s.do(http.MethodGet, "/api/batches", adviser, nil)
	assert.Equal(t, http.StatusForbidden, code, "the queue is for compliance")

	code, env = s.do(http.MethodGet, "/api/batches", compliance, nil)
	require.Equal(t, http.StatusOK, code)
	var queue []models.BatchSummary
	decodeData(t, env, &queue)
	assert.Empty(t, queue)

	code, _ = s.do(http.MethodPost, "/api/documents/"+d.ID+"/decision", adviser, map[string]string{"role": "adviser", "outcome": "approve"})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, "/api/batches?owner_id="+ownerID+"&from=2000-01-01&archived=true", compliance, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, "Open House", queue[0].Title)
	assert.Equal(t, models.BatchPendingReview, queue[0].Status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)

	code, _ = s.do(http.MethodGet, "/api/batches?from=2025-02-01&to=2025-01-01", compliance, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/batches?archived=perhaps", compliance, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}
