package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newSearchRouter(h *StatsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/dn/search", h.SearchNotes)
	return router
}

func TestSearchNotesUnavailableWithoutClient(t *testing.T) {
	h := NewStatsHandler(nil, nil, nil, nil, nil)
	router := newSearchRouter(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/dn/search?q=JP25011200001", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "search is disabled")
}
