package frame

import (
	"time"

	"github.com/loov/hrtime"
)

// Stats counts what the loop has done since Run started.
type Stats struct {
	Presented   uint64
	Recreations uint64
	IdleTicks   uint64
	Suboptimal  uint64
	OutOfDate   uint64

	// LastFrame is the time between the two most recent presents.
	LastFrame time.Duration

	frameTotal  time.Duration
	frameCount  uint64
	lastPresent time.Duration
}

// AverageFrame is the mean time between presents.
func (s Stats) AverageFrame() time.Duration {
	if s.frameCount == 0 {
		return 0
	}

	return s.frameTotal / time.Duration(s.frameCount)
}

func (s *Stats) markPresented() {
	now := hrtime.Now()
	if s.lastPresent != 0 {
		s.LastFrame = now - s.lastPresent
		s.frameTotal += s.LastFrame
		s.frameCount++
	}
	s.lastPresent = now
	s.Presented++
}

// resetPacing drops the previous present time so a resize pause is not counted as a frame.
func (s *Stats) resetPacing() {
	s.lastPresent = 0
}
