package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// progressPrinter redraws a single status line for a running scan.
type progressPrinter struct {
	out      io.Writer
	name     string
	started  time.Time
	now      func() time.Time
	mu       sync.Mutex
	status   scan.Status
	updates  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(out io.Writer, name string) *progressPrinter {
	return &progressPrinter{
		out:     out,
		name:    name,
		started: time.Now(),
		now:     time.Now,
		status:  scan.StatusPending,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop()
}

// Update records the latest task status.
func (p *progressPrinter) Update(status scan.Status) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 80))
		p.printLocked()
		fmt.Fprintln(p.out)
	})
}

func (p *progressPrinter) loop() {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	p.printLocked()
}

func (p *progressPrinter) printLocked() {
	elapsed := p.now().Sub(p.started).Seconds()
	fmt.Fprintf(p.out, "\r[%s] Status: %s Elapsed:%.1fs", p.name, p.status, elapsed)
}
