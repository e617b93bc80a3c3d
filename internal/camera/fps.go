package camera

import (
	"sync"
	"time"

	"github.com/ShellAddicted/wsCamera/internal/logger"
)

// fpsWindow is the number of frames averaged per FPS measurement.
const fpsWindow = 60

// FPSMeter measures the capture rate over windows of fpsWindow frames.
type FPSMeter struct {
	mu      sync.Mutex
	now     func() time.Time
	count   int
	started time.Time
	fps     float64
	report  func(fps float64)
}

// NewFPSMeter creates a meter. report, if non-nil, is called with every
// completed measurement.
func NewFPSMeter(report func(fps float64)) *FPSMeter {
	return newFPSMeter(time.Now, report)
}

func newFPSMeter(now func() time.Time, report func(fps float64)) *FPSMeter {
	return &FPSMeter{
		now:     now,
		started: now(),
		fps:     -1,
		report:  report,
	}
}

// Tick records one frame.
func (m *FPSMeter) Tick() {
	m.mu.Lock()
	m.count++
	if m.count < fpsWindow {
		m.mu.Unlock()
		return
	}

	now := m.now()
	elapsed := now.Sub(m.started).Seconds()
	if elapsed > 0 {
		m.fps = float64(m.count) / elapsed
	}
	fps := m.fps
	m.count = 0
	m.started = now
	m.mu.Unlock()

	logger.Info("Camera", "FPS: %.2f", fps)
	if m.report != nil {
		m.report(fps)
	}
}

// FPS returns the last measurement, or -1 before the first window completes.
func (m *FPSMeter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}
