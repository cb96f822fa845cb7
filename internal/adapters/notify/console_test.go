package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

func sampleReport() ports.StatusReport {
	return ports.StatusReport{
		Engine: map[string]any{
			"open_orders":     3,
			"orders_filled":   7,
			"signals_dropped": 0,
		},
		Risk: map[string]any{
			"global_exposure":       123.456,
			"kill_switch_triggered": false,
		},
		Portfolio: map[string]any{
			"total_pnl": 12.5,
		},
		Timing: map[string]any{
			"mean_ms": 250.0,
		},
	}
}

func TestNotifyCompact(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true)

	require.NoError(t, c.Notify(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "pnl:12.50")
	assert.Contains(t, out, "exposure:123.46")
	assert.Contains(t, out, "kill:false")
}

func TestNotifyFull(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false)

	require.NoError(t, c.Notify(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "ENGINE")
	assert.Contains(t, out, "RISK")
	assert.Contains(t, out, "PORTFOLIO")
	assert.Contains(t, out, "TIMING")
	assert.Contains(t, out, "global_exposure")
	assert.Contains(t, out, "123.46")
}
