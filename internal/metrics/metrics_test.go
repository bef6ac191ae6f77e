package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestRecordCycle tests that a cycle updates the sync collectors
func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(SyncCyclesTotal.WithLabelValues(OutcomeFailure))
	pulledBefore := testutil.ToFloat64(SyncEntitiesPulled)
	itemsBefore := testutil.ToFloat64(SyncEntitiesPushed.WithLabelValues("item"))

	RecordCycle(Cycle{
		Success:      false,
		Duration:     150 * time.Millisecond,
		Pushed:       map[string]int{"item": 3, "tag": 0},
		Pulled:       2,
		FailedChunks: 1,
		Pending:      7,
	})

	assert.Equal(t, before+1, testutil.ToFloat64(SyncCyclesTotal.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, pulledBefore+2, testutil.ToFloat64(SyncEntitiesPulled))
	assert.Equal(t, itemsBefore+3, testutil.ToFloat64(SyncEntitiesPushed.WithLabelValues("item")))
	assert.Equal(t, float64(7), testutil.ToFloat64(SyncPending))
}

// TestMiddleware tests that requests are counted by route pattern
func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/things/{id}", "418"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, before+2, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/things/{id}", "418")))
}
