package threat

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sample is one scored tick.
type Sample struct {
	At    time.Time `json:"at"`
	Score int       `json:"score"`
}

// History is a fixed-capacity ring buffer of score samples, newest at the
// tail. Owned by the scoring engine and mutated only on the control-loop
// goroutine; append order is strictly tied to scoring-tick order.
type History struct {
	buf   []Sample
	start int
	count int
}

// NewHistory creates a history with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]Sample, capacity)}
}

// Append records a sample, evicting the oldest once at capacity.
func (h *History) Append(s Sample) {
	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = s
		h.count++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored samples.
func (h *History) Len() int {
	return h.count
}

// Cap returns the buffer capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Latest returns the most recent sample, or false if empty.
func (h *History) Latest() (Sample, bool) {
	if h.count == 0 {
		return Sample{}, false
	}
	return h.buf[(h.start+h.count-1)%len(h.buf)], true
}

// Samples returns a copy of all samples, oldest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Summary aggregates the stored scores.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
}

// Summarize computes mean and max over the stored scores.
func (h *History) Summarize() Summary {
	if h.count == 0 {
		return Summary{}
	}
	scores := make([]float64, h.count)
	for i := 0; i < h.count; i++ {
		scores[i] = float64(h.buf[(h.start+i)%len(h.buf)].Score)
	}
	return Summary{
		Count: h.count,
		Mean:  stat.Mean(scores, nil),
		Max:   floats.Max(scores),
	}
}
