package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxsignal/oracle/internal/storage/memstore"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/utils/config"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

func TestHealthCheckReturnsOK(t *testing.T) {
	s := NewServer(&config.APIConfig{}, memstore.New(), logger.NewLogger("error"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRecentSignalsDefaultsWindowAndEncodesResult(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.InsertSignal(req(t).Context(), models.Signal{TokenAddress: "mintA", InstabilityIndex: 5, ObservedAt: time.Now()}))

	s := NewServer(&config.APIConfig{}, store, logger.NewLogger("error"))

	w := httptest.NewRecorder()
	s.RecentSignals(w, req(t))

	require.Equal(t, http.StatusOK, w.Code)
	var got []models.Signal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "mintA", got[0].TokenAddress)
}

func TestRecentSignalsHonorsMinutesParam(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.InsertSignal(req(t).Context(), models.Signal{
		TokenAddress: "mintOld",
		ObservedAt:   time.Now().Add(-2 * time.Hour),
	}))
	require.NoError(t, store.InsertSignal(req(t).Context(), models.Signal{
		TokenAddress: "mintNew",
		ObservedAt:   time.Now(),
	}))

	s := NewServer(&config.APIConfig{}, store, logger.NewLogger("error"))

	r := httptest.NewRequest(http.MethodGet, "/signals/recent?minutes=15", nil)
	w := httptest.NewRecorder()
	s.RecentSignals(w, r)

	var got []models.Signal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "mintNew", got[0].TokenAddress)
}

func TestRecentRegimesDefaultsNAndEncodesResult(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.LogRegime(req(t).Context(), models.RegimeObservation{Bucket: time.Now(), Label: models.RegimeStable}))

	s := NewServer(&config.APIConfig{}, store, logger.NewLogger("error"))

	w := httptest.NewRecorder()
	s.RecentRegimes(w, req(t))

	require.Equal(t, http.StatusOK, w.Code)
	var got []models.RegimeObservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, models.RegimeStable, got[0].Label)
}

func req(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/signals/recent", nil)
}
