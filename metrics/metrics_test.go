package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMarkTunnelIncrementsTotalButMarkProxyDoesNot(t *testing.T) {
	c := New(clock.NewMock())
	c.MarkTunnel()
	c.MarkProxy()

	// Total tracks tunnel attempts only; a proxy fallback is not a new
	// attempt against the tunnel and must not inflate it.
	if got := c.Total.Load(); got != 1 {
		t.Fatalf("expected Total=1, got %d", got)
	}
	if got := c.Tunnel.Load(); got != 1 {
		t.Fatalf("expected Tunnel=1, got %d", got)
	}
	if got := c.Proxy.Load(); got != 1 {
		t.Fatalf("expected Proxy=1, got %d", got)
	}
}

func TestMarkSuccessDecrementsTotalLeft(t *testing.T) {
	c := New(clock.NewMock())
	c.IncTotalLeft()
	c.IncTotalLeft()

	c.MarkSuccess()

	if got := c.TotalLeft.Load(); got != 1 {
		t.Fatalf("expected TotalLeft=1 after one success, got %d", got)
	}
}

func TestMarkThroughputFoldsIntoLine(t *testing.T) {
	c := New(clock.NewMock())
	c.MarkThroughput(1024, time.Second)

	line := c.Line()
	if !strings.Contains(line, "Throughput:") {
		t.Fatalf("expected line to report throughput, got %q", line)
	}
}

func TestIdleForAdvancesWithClock(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock)
	c.MarkSuccess()

	mock.Add(90 * time.Second)

	if got := c.IdleFor(); got < 90*time.Second {
		t.Fatalf("expected IdleFor >= 90s, got %v", got)
	}
}

func TestLineContainsAllFields(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock)
	c.MarkTunnel()
	c.MarkProxy()
	c.MarkSuccess()
	c.MarkFailed()
	c.IncTotalLeft()

	line := c.Line()
	for _, want := range []string{"Total:", "Success:", "Tunnel:", "Proxy:", "T-P Rate:", "Failed:", "Left:", "Rate:", "Throughput:"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected line to contain %q, got %q", want, line)
		}
	}
}

func TestSummaryReportsProcessedCount(t *testing.T) {
	mock := clock.NewMock()
	c := New(mock)
	c.MarkSuccess()
	c.Total.Add(10)

	mock.Add(5 * time.Second)

	summary := c.Summary()
	if !strings.Contains(summary, "Processed 10 pages") {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestRegisterAddsAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(clock.NewMock())
	c.Register(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 registered metric families, got %d", len(families))
	}
}
