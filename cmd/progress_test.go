package cmd

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinterLifecycle(t *testing.T) {
	out := &syncBuffer{}
	printer := newProgressPrinter(out, "full")
	start := printer.started
	printer.now = func() time.Time { return start.Add(1500 * time.Millisecond) }

	printer.Start()
	printer.Update(scan.StatusRunning)
	time.Sleep(350 * time.Millisecond) // allow ticker to tick at least once
	printer.Update(scan.StatusCompleted)
	printer.Stop()
	printer.Stop()

	output := out.String()
	if !strings.Contains(output, "[full] Status: running") {
		t.Fatalf("expected running status in output, got %q", output)
	}
	if !strings.Contains(output, "Status: completed Elapsed:1.5s") {
		t.Fatalf("expected final status line, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Fatalf("expected trailing newline after stop, got %q", output)
	}
}
