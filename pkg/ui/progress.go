package ui

import (
	"fmt"
	"sync"
	"time"
)

// ProgressDisplay renders a single updating status line while an archive run
// walks status pages and downloads media.
type ProgressDisplay struct {
	mu         sync.Mutex
	handle     string
	page       int
	statuses   int
	media      int
	skipped    int
	errors     int
	startTime  time.Time
	lineActive bool
}

// NewProgressDisplay creates a progress display for one account handle.
func NewProgressDisplay(handle string) *ProgressDisplay {
	return &ProgressDisplay{
		handle:    handle,
		startTime: time.Now(),
	}
}

// PageFetched records a fetched page and its status count.
func (p *ProgressDisplay) PageFetched(page, statuses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
	p.statuses += statuses
	p.printLine()
}

// MediaDownloaded records one downloaded attachment.
func (p *ProgressDisplay) MediaDownloaded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media++
	p.printLine()
}

// MediaSkipped records an attachment skipped because it already exists or
// could not be found upstream.
func (p *ProgressDisplay) MediaSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipped++
	p.printLine()
}

// Error records a non-fatal error.
func (p *ProgressDisplay) Error() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
	p.printLine()
}

// Finish terminates the status line and prints a summary.
func (p *ProgressDisplay) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	if quietMode {
		return
	}
	elapsed := time.Since(p.startTime).Round(time.Second)
	summary := fmt.Sprintf("%s: %d statuses, %d media (%d skipped) in %s",
		p.handle, p.statuses, p.media, p.skipped, elapsed)
	if p.errors > 0 {
		summary += fmt.Sprintf(", %d errors", p.errors)
	}
	fmt.Println(Green(summary))
}

// printLine redraws the in-place status line. Callers hold p.mu.
func (p *ProgressDisplay) printLine() {
	if quietMode {
		return
	}
	fmt.Printf("\r\033[K%s page %d | %d statuses | %d media",
		Cyan(p.handle), p.page, p.statuses, p.media)
	p.lineActive = true
}

// endLine moves off the in-place line if one is active. Callers hold p.mu.
func (p *ProgressDisplay) endLine() {
	if p.lineActive {
		fmt.Println()
		p.lineActive = false
	}
}
