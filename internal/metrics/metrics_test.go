package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(documentsProcessed.WithLabelValues(StatusSkipped))
	DocumentProcessed(StatusSkipped)
	assert.Equal(t, before+1, testutil.ToFloat64(documentsProcessed.WithLabelValues(StatusSkipped)))

	before = testutil.ToFloat64(recordsWritten.WithLabelValues("redis:test"))
	RecordsWritten("redis:test", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(recordsWritten.WithLabelValues("redis:test")))

	before = testutil.ToFloat64(subDocuments.WithLabelValues("w2"))
	SubDocumentCreated("w2")
	assert.Equal(t, before+1, testutil.ToFloat64(subDocuments.WithLabelValues("w2")))

	IncrementInFlight()
	assert.Equal(t, float64(1), testutil.ToFloat64(inFlight))
	DecrementInFlight()
	assert.Equal(t, float64(0), testutil.ToFloat64(inFlight))

	CaptureExtraction("FORM_W2_PROCESSOR", 1500*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(extractionLatency))
}
