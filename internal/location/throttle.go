package location

import "math"

// TravelMode selects the distance threshold a device must move before its
// position is broadcast again.
type TravelMode int

const (
	ModeWalking TravelMode = iota
	ModeDriving
)

// Throttle decides when a moving device has travelled far enough to justify
// another location broadcast. Platform push quotas make every broadcast a
// scarce resource, so the threshold adapts to the journey length.
type Throttle struct {
	walkingThreshold float64
	drivingThreshold float64
	ceiling          int

	mode       TravelMode
	threshold  float64
	lastSent   Point
	hasSent    bool
	warnedOnce bool
}

// NewThrottle builds a throttle. walking and driving are the default movement
// thresholds in meters; ceiling is the maximum number of location broadcasts
// a single journey may spend.
func NewThrottle(walking, driving float64, ceiling int) *Throttle {
	t := &Throttle{
		walkingThreshold: walking,
		drivingThreshold: driving,
		ceiling:          ceiling,
	}
	t.Reset(ModeWalking)
	return t
}

// Reset rearms the throttle for a new journey in the given mode.
func (t *Throttle) Reset(mode TravelMode) {
	t.mode = mode
	t.hasSent = false
	t.warnedOnce = false
	if mode == ModeDriving {
		t.threshold = t.drivingThreshold
	} else {
		t.threshold = t.walkingThreshold
	}
}

// SetMode switches travel mode mid-journey, keeping any journey-adapted
// threshold if it is already wider than the mode default.
func (t *Throttle) SetMode(mode TravelMode) {
	t.mode = mode
	def := t.walkingThreshold
	if mode == ModeDriving {
		def = t.drivingThreshold
	}
	if def > t.threshold {
		t.threshold = def
	}
}

// Threshold returns the current movement threshold in meters.
func (t *Throttle) Threshold() float64 { return t.threshold }

// AdaptForJourney widens the threshold when the journey is long enough that
// broadcasting at the current cadence would blow the notification budget.
// It returns true the first time the threshold is widened, so the caller can
// warn the user once about the reduced update rate.
func (t *Throttle) AdaptForJourney(journeyDistance float64) bool {
	if t.threshold <= 0 {
		return false
	}
	estimated := journeyDistance / t.threshold
	if estimated <= float64(t.ceiling) {
		return false
	}
	t.threshold = math.Round(journeyDistance / float64(t.ceiling))
	if t.warnedOnce {
		return false
	}
	t.warnedOnce = true
	return true
}

// ShouldBroadcast reports whether the device has moved past the threshold
// since the last accepted broadcast and, if so, records p as the new
// reference point. The first fix of a journey is always broadcast.
func (t *Throttle) ShouldBroadcast(p Point) bool {
	if !t.hasSent {
		t.hasSent = true
		t.lastSent = p
		return true
	}
	if Distance(t.lastSent, p) < t.threshold {
		return false
	}
	t.lastSent = p
	return true
}
