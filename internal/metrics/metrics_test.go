package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(hazardCreations.WithLabelValues(ResultConflict))
	IncHazardCreation(ResultConflict)
	assert.Equal(t, before+1, testutil.ToFloat64(hazardCreations.WithLabelValues(ResultConflict)))

	mergedBefore := testutil.ToFloat64(hazardMerges)
	AddMerged(2)
	AddMerged(0)
	assert.Equal(t, mergedBefore+2, testutil.ToFloat64(hazardMerges))

	SetOverdue(map[string]int{"overdue_response": 3})
	assert.Equal(t, 3.0, testutil.ToFloat64(overdueTickets.WithLabelValues("overdue_response")))
	SetOverdue(map[string]int{})
	assert.Equal(t, 0, testutil.CollectAndCount(overdueTickets))
}

func TestGinMiddleware(t *testing.T) {
	Init()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, testutil.CollectAndCount(httpRequestLatency))
}
