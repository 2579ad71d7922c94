package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxvault/inboxvault/internal/liveview"
	"github.com/inboxvault/inboxvault/internal/models"
)

type fakeBridge struct {
	replaced [][]models.RawItem
	snapshot []liveview.EntryState
	nudges   int64
}

func (f *fakeBridge) Replace(items []models.RawItem) {
	f.replaced = append(f.replaced, items)
}

func (f *fakeBridge) Snapshot() []liveview.EntryState { return f.snapshot }
func (f *fakeBridge) NudgeCount() int64               { return f.nudges }

func TestViewHandlerIngest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bridge := &fakeBridge{}
	handler := NewViewHandler(bridge, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	body := `{"items":[{"externalId":"conv-1","text":"Alice\nhello"},{"text":"Bob\nhey"}]}`
	c.Request = httptest.NewRequest(http.MethodPost, "/view/items", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Ingest(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, bridge.replaced, 1)
	assert.Len(t, bridge.replaced[0], 2)
	assert.Equal(t, "conv-1", bridge.replaced[0][0].ExternalID)
}

type fakeArchiveIndex struct {
	ids map[string]bool
}

func (f *fakeArchiveIndex) Contains(id string) bool { return f.ids[id] }

func TestViewHandlerIngestReportsDecisions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bridge := &fakeBridge{}
	index := &fakeArchiveIndex{ids: map[string]bool{"conv-1": true}}
	handler := NewViewHandler(bridge, index, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	body := `{"items":[{"externalId":"conv-1","text":"Alice\nhello"},{"externalId":"conv-2","text":"Bob\nhey"}]}`
	c.Request = httptest.NewRequest(http.MethodPost, "/view/items", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Ingest(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	decisions, ok := envelope.Data["decisions"].([]interface{})
	require.True(t, ok)
	require.Len(t, decisions, 2)
	first := decisions[0].(map[string]interface{})
	second := decisions[1].(map[string]interface{})
	assert.Equal(t, true, first["hidden"])
	assert.Equal(t, false, second["hidden"])
}

func TestViewHandlerIngestEmptyListClearsView(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bridge := &fakeBridge{}
	handler := NewViewHandler(bridge, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/view/items", strings.NewReader(`{"items":[]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Ingest(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, bridge.replaced, 1)
	assert.Empty(t, bridge.replaced[0])
}

func TestViewHandlerSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bridge := &fakeBridge{
		snapshot: []liveview.EntryState{{Handle: 1, ExternalID: "conv-1", Hidden: true}},
		nudges:   2,
	}
	handler := NewViewHandler(bridge, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/view/items", nil)

	handler.Snapshot(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(2), envelope.Data["nudges"])
}
