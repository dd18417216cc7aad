package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture records the last request the test server saw so assertions can
// inspect path, query, and headers after the SDK call returns.
type capture struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   []byte
}

func newCaptureServer(t *testing.T, status int, response interface{}) (*httptest.Server, *capture) {
	t.Helper()
	cap := &capture{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.method = r.Method
		cap.path = r.URL.Path
		cap.query = map[string]string{}
		for key := range r.URL.Query() {
			cap.query[key] = r.URL.Query().Get(key)
		}
		cap.header = r.Header.Clone()
		cap.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if response != nil {
			require.NoError(t, json.NewEncoder(w).Encode(response))
		}
	}))
	t.Cleanup(ts.Close)
	return ts, cap
}

func TestCreateSystemSendsAPIKey(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusCreated, System{ID: "sys-1", Name: "fraud-scorer"})
	c := New(ts.URL, WithAPIKey("secret"))

	got, err := c.Systems().Create(context.Background(), CreateSystemRequest{
		Name: "fraud-scorer", Type: "model", RiskTier: "high",
	})
	require.NoError(t, err)

	assert.Equal(t, "sys-1", got.ID)
	assert.Equal(t, http.MethodPost, cap.method)
	assert.Equal(t, "/api/v1/systems", cap.path)
	assert.Equal(t, "secret", cap.header.Get("X-API-Key"))
	assert.Equal(t, "application/json", cap.header.Get("Content-Type"))
	assert.Contains(t, string(cap.body), `"fraud-scorer"`)
}

func TestBearerTokenHeader(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusOK, System{ID: "sys-1"})
	c := New(ts.URL, WithToken("jwt-token"))

	_, err := c.Systems().Get(context.Background(), "sys-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-token", cap.header.Get("Authorization"))
}

func TestListSystemsQueryParams(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusOK, SystemPage{Meta: PageMeta{Page: 2, PageSize: 10}})
	c := New(ts.URL)

	page, err := c.Systems().List(context.Background(), ListSystemsOptions{
		RiskTier: "high",
		Tag:      "production",
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Meta.Page)
	assert.Equal(t, "high", cap.query["risk_tier"])
	assert.Equal(t, "production", cap.query["tag"])
	assert.Equal(t, "2", cap.query["page"])
	assert.Equal(t, "10", cap.query["page_size"])
	assert.NotContains(t, cap.query, "status", "empty filters are not sent")
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	ts, _ := newCaptureServer(t, http.StatusNotFound, map[string]string{"error": "system not found"})
	c := New(ts.URL)

	_, err := c.Systems().Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "system not found")
}

func TestConflictMapsToSentinel(t *testing.T) {
	ts, _ := newCaptureServer(t, http.StatusConflict, map[string]string{"error": "policy name already in use"})
	c := New(ts.URL)

	_, err := c.Policies().Create(context.Background(), CreatePolicyRequest{Name: "dup"})
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestPolicyBlockMapsToBlockedError(t *testing.T) {
	ts, _ := newCaptureServer(t, http.StatusForbidden, map[string]interface{}{
		"error": "action blocked by policy",
		"evaluation": EvaluationResult{
			Allowed:          false,
			Action:           "deploy",
			PoliciesFailed:   1,
			BlockingFailures: []string{"high risk systems require verified controls"},
		},
	})
	c := New(ts.URL)

	_, err := c.Systems().Update(context.Background(), "sys-1", UpdateSystemRequest{})
	require.Error(t, err)

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, "action blocked by policy", blocked.Message)
	require.NotNil(t, blocked.Evaluation)
	assert.False(t, blocked.Evaluation.Allowed)
	assert.Equal(t, []string{"high risk systems require verified controls"}, blocked.Evaluation.BlockingFailures)
}

func TestForbiddenWithoutEvaluationIsAPIError(t *testing.T) {
	ts, _ := newCaptureServer(t, http.StatusForbidden, map[string]string{"error": "nope"})
	c := New(ts.URL)

	err := c.Systems().Delete(context.Background(), "sys-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "nope", apiErr.Message)
}

func TestServerErrorMapsToAPIError(t *testing.T) {
	ts, _ := newCaptureServer(t, http.StatusInternalServerError, map[string]string{"error": "database unavailable"})
	c := New(ts.URL)

	_, err := c.Audit().Get(context.Background(), "evt-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "api error 500")
}

func TestEvaluateRoundTrip(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusOK, EvaluationResult{
		Allowed:           true,
		SystemID:          "sys-1",
		Action:            "deploy",
		PoliciesEvaluated: 2,
		PoliciesPassed:    2,
	})
	c := New(ts.URL)

	result, err := c.Policies().Evaluate(context.Background(), EvaluateRequest{
		SystemID: "sys-1",
		Action:   "deploy",
		Context:  map[string]interface{}{"environment": "production"},
	})
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.PoliciesEvaluated)
	assert.Equal(t, "/api/v1/policies/evaluate", cap.path)
	assert.Contains(t, string(cap.body), `"production"`)
}

func TestVerifyChainQuery(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusOK, VerificationReport{
		Verified: true, TotalEvents: 4, ValidEvents: 4,
		Message: "audit chain integrity verified",
	})
	c := New(ts.URL)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	report, err := c.Audit().VerifyChain(context.Background(), VerifyChainOptions{
		SystemID: "sys-1",
		From:     &from,
	})
	require.NoError(t, err)

	assert.True(t, report.Verified)
	assert.Equal(t, "/api/v1/audit/verify/chain", cap.path)
	assert.Equal(t, "sys-1", cap.query["system_id"])
	assert.Equal(t, "2026-02-01T00:00:00Z", cap.query["from"])
}

func TestDeleteSystemNoContent(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusNoContent, nil)
	c := New(ts.URL)

	require.NoError(t, c.Systems().Delete(context.Background(), "sys-1"))
	assert.Equal(t, http.MethodDelete, cap.method)
	assert.Equal(t, "/api/v1/systems/sys-1", cap.path)
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	ts, cap := newCaptureServer(t, http.StatusOK, System{ID: "sys-1"})
	c := New(ts.URL + "/")

	_, err := c.Systems().Get(context.Background(), "sys-1")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/systems/sys-1", cap.path)
}
