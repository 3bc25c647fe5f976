package location

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	internallocation "github.com/foxseedlab/roundup/internal/location"
)

// Walker is a simulated position source: it walks in a straight line from
// start toward the target with a little jitter on every fix. It stands in for
// platform GPS, which is out of scope for this client.
type Walker struct {
	start    internallocation.Point
	target   internallocation.Point
	speedMPS float64
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewWalker(start, target internallocation.Point, speedMPS float64, interval time.Duration) *Walker {
	return &Walker{start: start, target: target, speedMPS: speedMPS, interval: interval}
}

func (w *Walker) Start(ctx context.Context) (<-chan internallocation.Update, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil, errors.New("walker already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	out := make(chan internallocation.Update)
	go w.walk(ctx, out)
	return out, nil
}

func (w *Walker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.running = false
	return nil
}

func (w *Walker) walk(ctx context.Context, out chan<- internallocation.Update) {
	defer close(out)

	pos := w.start
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		remaining := internallocation.Distance(pos, w.target)
		step := w.speedMPS * w.interval.Seconds()
		if remaining > 0 && step < remaining {
			frac := step / remaining
			pos.Latitude += (w.target.Latitude - pos.Latitude) * frac
			pos.Longitude += (w.target.Longitude - pos.Longitude) * frac
		} else {
			pos = w.target
		}

		fix := internallocation.Update{Point: jitter(pos, 3), Accuracy: 5}
		select {
		case out <- fix:
		case <-ctx.Done():
			return
		}
	}
}

// jitter offsets p by up to radiusM meters in a random direction.
func jitter(p internallocation.Point, radiusM float64) internallocation.Point {
	const metersPerDegreeLat = 111_320.0
	r := radiusM * rand.Float64()
	theta := 2 * math.Pi * rand.Float64()
	p.Latitude += r * math.Sin(theta) / metersPerDegreeLat
	p.Longitude += r * math.Cos(theta) / (metersPerDegreeLat * math.Cos(p.Latitude*math.Pi/180))
	return p
}
