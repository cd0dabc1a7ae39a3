package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(FramesTotal.WithLabelValues("TCP"))
	FramesTotal.WithLabelValues("TCP").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FramesTotal.WithLabelValues("TCP")))

	families, err := Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pktstream_frames_total"])
	assert.True(t, names["pktstream_sessions_active"])
	assert.True(t, names["go_goroutines"])
}

func TestServerServesMetrics(t *testing.T) {
	EventsDeliveredTotal.Inc()

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pktstream_events_delivered_total")
}

func TestServerStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "/m").Stop(context.Background()))
}
