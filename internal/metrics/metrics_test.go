package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredGauges(t *testing.T) {
	m := New()
	m.BitrateBps.Set(645120)
	m.QP.Set(28)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "streamer_bitrate_bps 645120")
	assert.Contains(t, body, "streamer_qp 28")
}
