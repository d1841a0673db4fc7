package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets keep out of every events through. A zero ratio lets
// everything through.
type ratioSampler struct {
	ratio atomic.Uint64 // keep<<32 | every
	seq   atomic.Uint64
}

func newRatioSampler(keep, every int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(keep, every)
	return s
}

// Set replaces the ratio and restarts the sequence.
func (s *ratioSampler) Set(keep, every int) {
	if keep <= 0 || every <= 0 {
		s.ratio.Store(0)
	} else {
		keep = min(keep, every)
		s.ratio.Store(uint64(keep)<<32 | uint64(every))
	}
	s.seq.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	keep, every := r>>32, r&0xffffffff
	return (s.seq.Add(1)-1)%every < keep
}

// parseRatio reads "keep/every" or "every" (meaning 1/every). Zero or
// unparsable input yields 0, 0.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if a, b, ok := strings.Cut(raw, "/"); ok {
		keep, err1 := strconv.Atoi(strings.TrimSpace(a))
		every, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 == nil && err2 == nil {
			return keep, every
		}
		return 0, 0
	}
	if every, err := strconv.Atoi(raw); err == nil && every > 0 {
		return 1, every
	}
	return 0, 0
}
