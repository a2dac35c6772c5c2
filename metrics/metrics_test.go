package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(habitReports.WithLabelValues("saturated"))
	RecordHabitReport("saturated")
	assert.Equal(t, before+1, testutil.ToFloat64(habitReports.WithLabelValues("saturated")))

	SetSignerHealthy(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(signerHealthy))
	SetSignerHealthy(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(signerHealthy))

	before = testutil.ToFloat64(stakesExpired)
	RecordStakesExpired(3)
	assert.Equal(t, before+3, testutil.ToFloat64(stakesExpired))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTPRequest("GET", "/staking/active", 200, 10*time.Millisecond)
	RecordSignature("claim")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lvlup_http_requests_total{method="GET",route="/staking/active",status="200"}`)
	assert.Contains(t, string(body), `lvlup_signer_signatures_total{kind="claim"}`)
}
