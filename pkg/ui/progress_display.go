package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"davmigrate/pkg/models"
)

// ProgressDisplay provides a clean, minimal progress display for one batch.
// It satisfies storage.ProgressReporter.
type ProgressDisplay struct {
	mu            sync.Mutex
	w             io.Writer
	entity        string
	total         int
	uploadedCount int
	currentFile   string
	startTime     time.Time
	bytesUploaded int64
	errors        int
	isDebug       bool
}

// NewProgressDisplay creates a new progress display
func NewProgressDisplay(entity string, total int, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		w:         out,
		entity:    entity,
		total:     total,
		startTime: time.Now(),
		isDebug:   debug,
	}
}

// Reset starts a new batch on the same display
func (p *ProgressDisplay) Reset(entity string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entity = entity
	p.total = total
	p.uploadedCount = 0
	p.currentFile = ""
	p.bytesUploaded = 0
	p.errors = 0
	p.startTime = time.Now()
}

// UploadStarted marks the start of the upload at index
func (p *ProgressDisplay) UploadStarted(index, total int, file models.FileRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.currentFile = file.FileID
	if !p.isDebug && !IsQuietMode() {
		p.printProgress()
	}
}

// UploadFinished records the outcome of the upload at index
func (p *ProgressDisplay) UploadFinished(index, total int, file models.FileRecord, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.errors++
		if p.isDebug {
			fmt.Fprintf(p.w, "\n%s Failed: %s - %v\n", Red("✗"), file.Identity(), err)
		} else if !IsQuietMode() {
			p.printProgress()
		}
		return
	}

	p.uploadedCount++
	p.bytesUploaded += file.Size()
	if p.isDebug {
		fmt.Fprintf(p.w, "\n%s %d/%d %s • %s", Green("✓"), index+1, total, file.Identity(), FormatBytes(file.Size()))
	} else if !IsQuietMode() {
		p.printProgress()
	}
}

// printProgress prints the single progress line
func (p *ProgressDisplay) printProgress() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.uploadedCount) / elapsed.Minutes()
	}

	progress := 0.0
	if p.total > 0 {
		progress = float64(p.uploadedCount) / float64(p.total)
	}
	barWidth := 20
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("\r%s [%s] %d/%d • %.1f/min • %s • %s",
		Cyan(p.entity),
		bar,
		p.uploadedCount,
		p.total,
		rate,
		FormatBytes(p.bytesUploaded),
		p.calculateETA(),
	)
	if p.currentFile != "" {
		line += fmt.Sprintf(" • %s", p.currentFile)
	}
	if p.errors > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.errors)))
	}

	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete prints the batch summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if IsQuietMode() {
		return
	}
	elapsed := time.Since(p.startTime)
	fmt.Fprintf(p.w, "\n%s Uploaded %d/%d %s files\n", Green("✓"), p.uploadedCount, p.total, p.entity)
	fmt.Fprintf(p.w, "  %s %s in %s\n", Dim("•"), FormatBytes(p.bytesUploaded), FormatDuration(elapsed))
	if p.errors > 0 {
		fmt.Fprintf(p.w, "  %s %d uploads failed\n", Dim("•"), p.errors)
	}
}

// Uploaded returns the number of successful uploads in the current batch
func (p *ProgressDisplay) Uploaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploadedCount
}

// calculateETA estimates time remaining
func (p *ProgressDisplay) calculateETA() string {
	if p.uploadedCount == 0 {
		return "calculating..."
	}
	rate := float64(p.uploadedCount) / time.Since(p.startTime).Seconds()
	if rate == 0 {
		return "calculating..."
	}
	remaining := p.total - p.uploadedCount
	return FormatDuration(time.Duration(float64(remaining)/rate) * time.Second)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
