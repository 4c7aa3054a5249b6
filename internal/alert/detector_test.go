package alert

import (
	"testing"
	"time"

	"screener-stream/config"
	"screener-stream/internal/model"
)

func f(v float64) *float64 { return &v }

func thresholds() config.Thresholds {
	return config.Thresholds{
		GapPct:          2.0,
		RSIOverbought:   70,
		RSIOversold:     30,
		CooldownSeconds: 300,
	}
}

// ind builds a snapshot where the bands and RSI are all defined and quiet.
func quietInd() model.IndicatorSnapshot {
	return model.IndicatorSnapshot{RSI14: f(50), BBUpper: f(110), BBLower: f(90)}
}

func TestDetector_EdgeTriggered(t *testing.T) {
	d := NewDetector("RELIANCE")
	th := thresholds()
	now := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	// Five consecutive ticks above the upper band fire exactly once.
	total := 0
	for i := 0; i < 5; i++ {
		fired, _ := d.Evaluate(now.Add(time.Duration(i)*time.Second), 111, quietInd(), th)
		total += len(fired)
	}
	if total != 1 {
		t.Fatalf("fired %d alerts across 5 breached ticks, want 1", total)
	}
}

func TestDetector_RearmsAfterConditionClears(t *testing.T) {
	d := NewDetector("TCS")
	th := thresholds()
	th.CooldownSeconds = 0
	now := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	fired, _ := d.Evaluate(now, 111, quietInd(), th)
	if len(fired) != 1 || fired[0].Type != model.AlertBBUpperCross {
		t.Fatalf("first breach: fired %v, want one bb_upper_cross", fired)
	}

	// Back inside the band: nothing, but the edge re-arms.
	fired, _ = d.Evaluate(now.Add(time.Second), 100, quietInd(), th)
	if len(fired) != 0 {
		t.Fatalf("inside band: fired %v, want none", fired)
	}

	fired, _ = d.Evaluate(now.Add(2*time.Second), 112, quietInd(), th)
	if len(fired) != 1 {
		t.Fatalf("second breach: fired %v, want one", fired)
	}
}

func TestDetector_CooldownSuppressesAndReadmits(t *testing.T) {
	d := NewDetector("INFY")
	th := thresholds() // 300s cooldown
	base := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	if fired, _ := d.Evaluate(base, 111, quietInd(), th); len(fired) != 1 {
		t.Fatalf("initial breach should fire, got %v", fired)
	}

	// Clear, then breach again inside the cooldown window: suppressed.
	d.Evaluate(base.Add(10*time.Second), 100, quietInd(), th)
	fired, suppressed := d.Evaluate(base.Add(20*time.Second), 111, quietInd(), th)
	if len(fired) != 0 {
		t.Fatalf("breach during cooldown fired %v", fired)
	}
	if suppressed != 1 {
		t.Fatalf("suppressed = %d, want 1", suppressed)
	}

	// The suppressed transition consumed the edge: staying breached past
	// the cooldown still fires nothing.
	if fired, _ := d.Evaluate(base.Add(400*time.Second), 111, quietInd(), th); len(fired) != 0 {
		t.Fatalf("held breach after cooldown fired %v", fired)
	}

	// Clear and breach once more after the window: fires again.
	d.Evaluate(base.Add(410*time.Second), 100, quietInd(), th)
	if fired, _ := d.Evaluate(base.Add(420*time.Second), 111, quietInd(), th); len(fired) != 1 {
		t.Fatalf("breach after cooldown fired %v, want one", fired)
	}
}

func TestDetector_IndependentTypes(t *testing.T) {
	d := NewDetector("HDFCBANK")
	th := thresholds()
	now := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	// Close above the band while RSI is overbought: two distinct alerts.
	ind := model.IndicatorSnapshot{RSI14: f(80), BBUpper: f(110), BBLower: f(90)}
	fired, _ := d.Evaluate(now, 111, ind, th)
	if len(fired) != 2 {
		t.Fatalf("fired %d alerts, want 2 (bb_upper_cross + rsi_overbought)", len(fired))
	}
	if fired[0].Type != model.AlertBBUpperCross || fired[1].Type != model.AlertRSIOverbought {
		t.Fatalf("types = %s, %s", fired[0].Type, fired[1].Type)
	}
	for _, a := range fired {
		if a.ID == "" || a.Symbol != "HDFCBANK" || a.TS != now {
			t.Errorf("alert fields incomplete: %+v", a)
		}
	}
}

func TestDetector_SeveritiesFromConfig(t *testing.T) {
	d := NewDetector("SBIN")
	th := thresholds()
	th.Severities = map[string]string{config.KeyBBUpperCross: "info"}
	now := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	fired, _ := d.Evaluate(now, 111, quietInd(), th)
	if len(fired) != 1 || fired[0].Severity != model.SeverityInfo {
		t.Fatalf("fired %v, want one info-severity alert", fired)
	}

	// Unconfigured types keep the built-in mapping.
	ind := model.IndicatorSnapshot{RSI14: f(20), BBUpper: f(110), BBLower: f(90)}
	fired, _ = d.Evaluate(now.Add(time.Second), 100, ind, th)
	if len(fired) != 1 || fired[0].Type != model.AlertRSIOversold {
		t.Fatalf("fired %v, want one rsi_oversold", fired)
	}
	if fired[0].Severity != model.SeverityWarn {
		t.Errorf("severity = %s, want warn default", fired[0].Severity)
	}
}

func TestDetector_UndefinedIndicatorsBlockAndReset(t *testing.T) {
	d := NewDetector("WIPRO")
	th := thresholds()
	th.CooldownSeconds = 0
	now := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	if fired, _ := d.Evaluate(now, 111, quietInd(), th); len(fired) != 1 {
		t.Fatal("seed breach should fire")
	}

	// Bands vanish: no evaluation, and the breached state clears so the
	// next defined breach is a fresh edge.
	fired, _ := d.Evaluate(now.Add(time.Second), 111, model.IndicatorSnapshot{RSI14: f(50)}, th)
	if len(fired) != 0 {
		t.Fatalf("undefined bands fired %v", fired)
	}
	if fired, _ := d.Evaluate(now.Add(2*time.Second), 111, quietInd(), th); len(fired) != 1 {
		t.Fatalf("re-defined breach fired %v, want one", fired)
	}
}

func TestDetector_GapOncePerSession(t *testing.T) {
	d := NewDetector("RELIANCE")
	th := thresholds() // gap threshold 2%
	now := time.Date(2026, 8, 19, 9, 15, 0, 0, time.UTC)

	a := d.EvaluateGap(now, 3.4, th)
	if a == nil || a.Type != model.AlertGap || a.Value != 3.4 {
		t.Fatalf("gap alert = %+v, want gap with value 3.4", a)
	}
	if a.Severity != model.SeverityInfo {
		t.Errorf("gap severity = %s, want info", a.Severity)
	}

	// Same session: disarmed.
	if a := d.EvaluateGap(now.Add(time.Minute), 5.0, th); a != nil {
		t.Fatalf("second gap in session = %+v, want nil", a)
	}

	// Next session re-arms; a gap below threshold consumes the check
	// without firing.
	d.ArmGap()
	if a := d.EvaluateGap(now.Add(24*time.Hour), 1.2, th); a != nil {
		t.Fatalf("below-threshold gap = %+v, want nil", a)
	}
	if a := d.EvaluateGap(now.Add(24*time.Hour), 4.0, th); a != nil {
		t.Fatalf("gap after consumed check = %+v, want nil", a)
	}
}

func TestDetector_GapDownFires(t *testing.T) {
	d := NewDetector("TCS")
	th := thresholds()
	now := time.Date(2026, 8, 19, 9, 15, 0, 0, time.UTC)

	a := d.EvaluateGap(now, -2.5, th)
	if a == nil || a.Value != -2.5 {
		t.Fatalf("gap-down alert = %+v, want value -2.5", a)
	}
}
