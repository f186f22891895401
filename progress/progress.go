package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/und3rrr/media-cleaner/log"
)

var Clock = clock.New()

var progressReportBuckets = []float64{0, 0.25, 0.5, 0.75, 1}

const minReportInterval = 2 * time.Second
const checkInterval = 250 * time.Millisecond

// Reporter scales a phase-local progress function (e.g. "frames perturbed /
// total frames") into the task's overall percent_complete and pushes updates
// through onReport whenever the value crosses a reporting bucket or enough
// time has elapsed since the last push. Mirrors the phase-scaling contract
// used by the pipeline runner's per-step progress marks (§4.D).
type Reporter struct {
	ctx      context.Context
	cancel   context.CancelFunc
	taskID   string
	onReport func(progress float64)

	mu                   sync.Mutex
	getProgress          func() float64
	scaleStart, scaleEnd float64

	lastReport   time.Time
	lastProgress float64
}

func NewReporter(ctx context.Context, taskID string, onReport func(progress float64)) *Reporter {
	ctx, cancel := context.WithCancel(ctx)
	p := &Reporter{
		ctx:      ctx,
		cancel:   cancel,
		taskID:   taskID,
		onReport: onReport,
	}
	go p.mainLoop()
	return p
}

func (p *Reporter) Stop() {
	p.cancel()
}

// Track sets a new phase: getProgress returns 0..1 within the phase, which is
// scaled into [previous scaleEnd, end] of the task's overall 0..1 progress.
func (p *Reporter) Track(getProgress func() float64, end float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if end < p.scaleEnd || end > 1 {
		log.LogError(p.taskID, fmt.Sprintf("invalid end progress lastProgress=%f endProgress=%f", p.lastProgress, end), errors.New("invalid end progress set"))
		if end > 1 {
			end = 1
		} else {
			end = p.scaleEnd
		}
	}
	p.getProgress, p.scaleStart, p.scaleEnd = getProgress, p.scaleEnd, end
}

// Set jumps straight to a fixed overall progress value, used for the fixed
// percentage marks STRIP_METADATA and COMPRESS report between phases.
func (p *Reporter) Set(val float64) {
	p.Track(func() float64 { return 1 }, val)
}

func (p *Reporter) TrackCount(getCount func() uint64, size uint64, endProgress float64) {
	if size == 0 {
		p.Set(endProgress)
		return
	}
	p.Track(func() float64 {
		return float64(getCount()) / float64(size)
	}, endProgress)
}

func (p *Reporter) mainLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.LogError(p.taskID, fmt.Sprintf("panic reporting progress: value=%q stack:\n%s", r, string(debug.Stack())), errors.New("panic reporting task progress"))
		}
	}()
	timer := Clock.Ticker(checkInterval)
	defer timer.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			p.reportOnce()
		}
	}
}

func (p *Reporter) reportOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getProgress == nil {
		return
	}

	progress := p.calcProgress()
	if progress <= p.lastProgress && p.lastReport != (time.Time{}) {
		return
	}
	if !shouldReportProgress(progress, p.lastProgress, p.lastReport) {
		return
	}

	p.onReport(progress)
	p.lastReport, p.lastProgress = Clock.Now(), progress
}

func shouldReportProgress(newProgress, old float64, lastReportedAt time.Time) bool {
	return progressBucket(newProgress) != progressBucket(old) ||
		Clock.Since(lastReportedAt) >= minReportInterval
}

func (p *Reporter) calcProgress() float64 {
	val := p.getProgress()
	val = math.Max(val, 0)
	val = math.Min(val, 0.999)
	val = p.scaleStart + val*(p.scaleEnd-p.scaleStart)
	val = math.Round(val*1000) / 1000
	return val
}

func progressBucket(progress float64) int {
	return sort.SearchFloat64s(progressReportBuckets, progress)
}
