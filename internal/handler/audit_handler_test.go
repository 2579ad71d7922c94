package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxvault/inboxvault/internal/models"
)

type fakeAuditSrv struct {
	logs      []models.AuditLog
	err       error
	lastLimit int
}

func (f *fakeAuditSrv) ListRecent(_ context.Context, limit int) ([]models.AuditLog, error) {
	f.lastLimit = limit
	return f.logs, f.err
}

func newAuditRouter(srv *fakeAuditSrv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/audit", NewAuditHandler(srv).List)
	return r
}

func TestAuditHandlerList(t *testing.T) {
	srv := &fakeAuditSrv{logs: []models.AuditLog{
		{Action: models.AuditActionRestore, Actor: "operator"},
		{Action: models.AuditActionArchive, Actor: "operator"},
	}}
	router := newAuditRouter(srv)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit?limit=2", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, srv.lastLimit)

	var env responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, float64(2), env.Data["count"])
}

func TestAuditHandlerListDefaultLimit(t *testing.T) {
	srv := &fakeAuditSrv{}
	router := newAuditRouter(srv)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, srv.lastLimit)
}

func TestAuditHandlerListRejectsBadLimit(t *testing.T) {
	srv := &fakeAuditSrv{}
	router := newAuditRouter(srv)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit?limit=zero", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, srv.lastLimit)
}
