package location

import (
	"math"
	"testing"
)

func TestThrottleDefaults(t *testing.T) {
	th := NewThrottle(100, 500, 400)
	if th.Threshold() != 100 {
		t.Fatalf("walking default should be 100, got %v", th.Threshold())
	}
	th.Reset(ModeDriving)
	if th.Threshold() != 500 {
		t.Fatalf("driving default should be 500, got %v", th.Threshold())
	}
}

func TestShouldBroadcast(t *testing.T) {
	th := NewThrottle(100, 500, 400)

	start := Point{Latitude: 51.5033, Longitude: -0.1196}
	if !th.ShouldBroadcast(start) {
		t.Fatal("first fix should always broadcast")
	}
	// ~20m north of start, below the walking threshold.
	if th.ShouldBroadcast(Point{Latitude: 51.50348, Longitude: -0.1196}) {
		t.Fatal("movement below the threshold should not broadcast")
	}
	// ~290m away, well past the threshold.
	far := Point{Latitude: 51.5007, Longitude: -0.1246}
	if !th.ShouldBroadcast(far) {
		t.Fatal("movement past the threshold should broadcast")
	}
	// Same point again: reference has advanced, no re-broadcast.
	if th.ShouldBroadcast(far) {
		t.Fatal("no movement since last broadcast should not re-broadcast")
	}
}

func TestAdaptForJourneyShortTrip(t *testing.T) {
	th := NewThrottle(100, 500, 400)
	if th.AdaptForJourney(5000) {
		t.Fatal("5km at 100m steps is only 50 broadcasts, no adaptation expected")
	}
	if th.Threshold() != 100 {
		t.Fatalf("threshold should be unchanged, got %v", th.Threshold())
	}
}

func TestAdaptForJourneyLongTrip(t *testing.T) {
	th := NewThrottle(100, 500, 400)

	journey := 100_000.0 // 100km walking would be 1000 broadcasts
	warned := th.AdaptForJourney(journey)
	if !warned {
		t.Fatal("first adaptation should warn")
	}
	want := math.Round(journey / 400)
	if th.Threshold() != want {
		t.Fatalf("threshold should be %v, got %v", want, th.Threshold())
	}

	if th.AdaptForJourney(journey * 2) {
		t.Fatal("warning should fire only once per journey")
	}

	th.Reset(ModeWalking)
	if !th.AdaptForJourney(journey) {
		t.Fatal("reset should rearm the one-shot warning")
	}
}

func TestSetModeKeepsWiderAdaptedThreshold(t *testing.T) {
	th := NewThrottle(100, 500, 400)
	th.AdaptForJourney(1_000_000) // threshold becomes 2500

	th.SetMode(ModeDriving)
	if th.Threshold() != 2500 {
		t.Fatalf("adapted threshold wider than the mode default should survive, got %v", th.Threshold())
	}

	th2 := NewThrottle(100, 500, 400)
	th2.SetMode(ModeDriving)
	if th2.Threshold() != 500 {
		t.Fatalf("mode switch should widen an unadapted threshold, got %v", th2.Threshold())
	}
}
