package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	c.EventReceived("notification")
	c.EventDebounced("notification")
	c.Invalidated("orders")
	c.Mutation("add_item", nil)
	c.Printed("kitchen", nil)
	c.SetConnectionState(2)
	c.HistoryDiverged()
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.Mutation("add_item", nil)
	c.Mutation("add_item", errors.New("boom"))
	c.Mutation("add_item", errors.New("boom"))
	c.HistoryDiverged()
	c.SetConnectionState(2)

	if got := testutil.ToFloat64(c.mutations.WithLabelValues("add_item", OutcomeFailure)); got != 2 {
		t.Errorf("failed mutations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.mutations.WithLabelValues("add_item", OutcomeSuccess)); got != 1 {
		t.Errorf("successful mutations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.historyDivergences); got != 1 {
		t.Errorf("divergences = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.connectionState); got != 2 {
		t.Errorf("connection state = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.Invalidated("tables")

	rec := httptest.NewRecorder()
	Handler(NewRegistry(c)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `comanda_collection_invalidations_total{collection="tables"} 1`) {
		t.Errorf("body missing invalidation counter:\n%s", rec.Body.String())
	}
}
