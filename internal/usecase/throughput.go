package usecase

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/prdash/internal/render"
)

type sample struct {
	at        time.Time
	processed int
}

// Throughput estimates processing speed from progress samples. The median
// of the per-interval rates is used so a single slow repository does not
// swing the estimate.
type Throughput struct {
	mu      sync.Mutex
	window  int
	samples []sample
}

// NewThroughput keeps the most recent window samples.
func NewThroughput(window int) *Throughput {
	if window < 2 {
		window = 2
	}
	return &Throughput{window: window}
}

// Observe records the processed count seen at a point in time. A count
// lower than the previous one means a new run; the history is dropped.
func (t *Throughput) Observe(at time.Time, processed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.samples); n > 0 && processed < t.samples[n-1].processed {
		t.samples = t.samples[:0]
	}
	t.samples = append(t.samples, sample{at: at, processed: processed})
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}
}

// Reset drops all samples.
func (t *Throughput) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
}

// Estimate returns the processing rate and the time left for the remaining items.
func (t *Throughput) Estimate(processed, total int) render.Estimate {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rates stats.Float64Data
	for i := 1; i < len(t.samples); i++ {
		dt := t.samples[i].at.Sub(t.samples[i-1].at).Seconds()
		if dt <= 0 {
			continue
		}
		rates = append(rates, float64(t.samples[i].processed-t.samples[i-1].processed)/dt)
	}
	if len(rates) == 0 {
		return render.Estimate{}
	}
	rate, err := stats.Median(rates)
	if err != nil || rate <= 0 || math.IsNaN(rate) {
		return render.Estimate{}
	}
	remaining := max(total-processed, 0)
	return render.Estimate{
		Known:     true,
		PerSecond: rate,
		Remaining: time.Duration(float64(remaining) / rate * float64(time.Second)),
	}
}
