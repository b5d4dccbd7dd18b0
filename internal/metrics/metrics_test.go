package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRefill(t *testing.T) {
	filled := testutil.ToFloat64(DeckRefills.WithLabelValues("filled"))
	empty := testutil.ToFloat64(DeckRefills.WithLabelValues("empty"))
	failed := testutil.ToFloat64(DeckRefills.WithLabelValues("error"))
	dishes := testutil.ToFloat64(DeckRefillDishes)

	RecordRefill(4, nil)
	RecordRefill(0, nil)
	RecordRefill(0, errors.New("down"))

	assert.Equal(t, filled+1, testutil.ToFloat64(DeckRefills.WithLabelValues("filled")))
	assert.Equal(t, empty+1, testutil.ToFloat64(DeckRefills.WithLabelValues("empty")))
	assert.Equal(t, failed+1, testutil.ToFloat64(DeckRefills.WithLabelValues("error")))
	assert.Equal(t, dishes+4, testutil.ToFloat64(DeckRefillDishes))
}

func TestRecordSave(t *testing.T) {
	ok := testutil.ToFloat64(SnapshotSaves.WithLabelValues("success"))
	bad := testutil.ToFloat64(SnapshotSaves.WithLabelValues("failure"))

	RecordSave(nil)
	RecordSave(errors.New("disk full"))

	assert.Equal(t, ok+1, testutil.ToFloat64(SnapshotSaves.WithLabelValues("success")))
	assert.Equal(t, bad+1, testutil.ToFloat64(SnapshotSaves.WithLabelValues("failure")))
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("open")
	assert.Equal(t, 1.0, testutil.ToFloat64(AnalysisBreakerState.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(AnalysisBreakerState.WithLabelValues("closed")))

	SetBreakerState("closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(AnalysisBreakerState.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(AnalysisBreakerState.WithLabelValues("closed")))
}

func TestRecordAnalysisAndAPI(t *testing.T) {
	before := testutil.ToFloat64(AnalysisRequests.WithLabelValues("stale"))
	RecordAnalysis(2*time.Second, "stale")
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysisRequests.WithLabelValues("stale")))

	reqs := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/state", "200"))
	RecordAPIRequest("GET", "/api/state", "200", time.Millisecond)
	assert.Equal(t, reqs+1, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/state", "200")))
}
