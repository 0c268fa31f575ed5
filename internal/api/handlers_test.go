package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/dedup-ce/internal/config"
	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/embedding"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/service"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Metrics.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	stores := repository.NewMemory()
	engine := dedup.NewEngine(dedup.DefaultConfig())
	clustering := service.NewClusteringService(stores, engine)
	merges := service.NewMergeService(stores, engine, 24*time.Hour)
	ingest := service.NewIngestService(stores, clustering, embedding.NewStaticProvider(embedding.NewDeterministic(64)))

	h := NewHandler(ingest, clustering, merges, nil)
	return NewRouter(cfg, h)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ticketPayload(number string) map[string]interface{} {
	return map[string]interface{}{
		"ticket_number": number,
		"summary":       "double charge on card",
		"category":      "Billing",
		"subcategory":   "Charges",
		"channel":       "app",
		"customer_id":   "cust-1",
	}
}

func ingestTicket(t *testing.T, r *gin.Engine, number string) *models.Ticket {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", ticketPayload(number))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tk models.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tk))
	return &tk
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, nil)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestIngestEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)

	t.Run("creates a ticket", func(t *testing.T) {
		tk := ingestTicket(t, r, "INC-1")
		assert.NotEmpty(t, tk.ID)
		assert.NotEmpty(t, tk.ClusterID)
		require.NotNil(t, tk.Dedup)
		assert.Equal(t, models.DecisionNewCluster, tk.Dedup.Decision)
	})

	t.Run("near duplicate is auto matched", func(t *testing.T) {
		tk := ingestTicket(t, r, "INC-2")
		assert.Equal(t, models.DecisionAuto, tk.Dedup.Decision)
	})

	t.Run("missing required fields", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", map[string]interface{}{
			"ticket_number": "INC-3",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate number conflicts", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/tickets", ticketPayload("INC-1"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "duplicate_ticket_number")
	})
}

func TestClusterEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)
	tk := ingestTicket(t, r, "INC-1")
	ingestTicket(t, r, "INC-2")

	t.Run("get requires pk", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/v1/clusters/"+tk.ClusterID, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get cluster", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/clusters/%s?pk=%s", tk.ClusterID, tk.PK), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var cl models.Cluster
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cl))
		assert.Equal(t, models.ClusterStatusPending, cl.Status)
		assert.Equal(t, 2, cl.TicketCount)
	})

	t.Run("unknown cluster", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/v1/clusters/nope?pk="+tk.PK, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list clusters", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/v1/clusters?pk="+tk.PK, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)
	})

	t.Run("remove member and dismiss", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete,
			fmt.Sprintf("/api/v1/clusters/%s/members/%s?pk=%s", tk.ClusterID, tk.ID, tk.PK), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var cl models.Cluster
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cl))
		assert.Equal(t, models.ClusterStatusCandidate, cl.Status)

		w = doJSON(t, r, http.MethodPost, "/api/v1/clusters/"+tk.ClusterID+"/dismiss", map[string]interface{}{
			"pk":           tk.PK,
			"dismissed_by": "agent-1",
			"reason":       "not duplicates",
		})
		assert.Equal(t, http.StatusOK, w.Code)

		// A second dismissal is an invalid state
		w = doJSON(t, r, http.MethodPost, "/api/v1/clusters/"+tk.ClusterID+"/dismiss", map[string]interface{}{
			"pk":           tk.PK,
			"dismissed_by": "agent-1",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestMergeEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)
	primary := ingestTicket(t, r, "INC-1")
	ingestTicket(t, r, "INC-2")

	var op models.MergeOperation

	t.Run("merge", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/merges", map[string]interface{}{
			"cluster_id":        primary.ClusterID,
			"primary_ticket_id": primary.ID,
			"pk":                primary.PK,
			"performed_by":      "agent-1",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &op))
		assert.Equal(t, models.MergeStatusCompleted, op.Status)
		assert.Len(t, op.SecondaryTicketIDs, 1)
	})

	t.Run("get merge", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/merges/%s?pk=%s", op.ID, op.PK), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("revert", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/merges/"+op.ID+"/revert", map[string]interface{}{
			"pk":          op.PK,
			"reverted_by": "agent-2",
			"reason":      "wrong primary",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var got models.MergeOperation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.MergeStatusReverted, got.Status)
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Server.APIKey = "secret"
	})

	w := doJSON(t, r, http.MethodGet, "/api/v1/clusters?pk=2026-08", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clusters?pk=2026-08", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health probe stays open
	w = doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
