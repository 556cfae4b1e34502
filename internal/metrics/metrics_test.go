package metrics

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/opensandbox/canvas/internal/logging"
)

func TestStartMetricsServerLogsBindFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	prev := logging.L()
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(prev) })

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := StartMetricsServer(busy.Addr().String())
	defer srv.Close()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("metrics listener failed").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	entry := logs.FilterMessage("metrics listener failed").All()[0]
	assert.Equal(t, busy.Addr().String(), entry.ContextMap()["addr"])
}

func TestStartMetricsServerClosedQuietly(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	prev := logging.L()
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(prev) })

	srv := StartMetricsServer("127.0.0.1:0")
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Close())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, logs.Len())
}
