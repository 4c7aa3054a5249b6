package window

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/montanaflynn/stats"

	"screener-stream/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.8f want %.8f (tol %g)", label, got, want, tol)
	}
}

func bar(close float64, vol int64) model.PriceBar {
	return model.PriceBar{
		TS: time.Now(), Open: close, High: close, Low: close, Close: close, Volume: vol,
	}
}

// ───────────────────────── incremental vs direct ─────────────────────────

// The running sums must agree with a direct recomputation over the trailing
// closes at every step, including after eviction starts at capacity.
func TestTrailingSums_MatchDirectRecomputation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	w := New()

	var closes []float64
	price := 500.0
	for i := 0; i < 500; i++ {
		price += (rng.Float64() - 0.5) * 4
		closes = append(closes, price)
		w.Ingest(bar(price, 100))

		for _, period := range []int{PeriodShort, PeriodMid, PeriodLong} {
			sum, ok := w.TrailingSum(period)
			if len(closes) < period {
				if ok {
					t.Fatalf("tick %d: TrailingSum(%d) ready before %d closes", i, period, period)
				}
				continue
			}
			if !ok {
				t.Fatalf("tick %d: TrailingSum(%d) not ready at %d closes", i, period, len(closes))
			}
			tail := closes[len(closes)-period:]
			mean, _ := stats.Mean(stats.Float64Data(tail))
			assertClose(t, "sma", sum/float64(period), mean, 1e-7)
		}

		if len(closes) >= PeriodShort {
			sum, _ := w.TrailingSum(PeriodShort)
			sumSq, ok := w.TrailingSumSq()
			if !ok {
				t.Fatalf("tick %d: TrailingSumSq not ready", i)
			}
			n := float64(PeriodShort)
			mean := sum / n
			variance := (sumSq - n*mean*mean) / (n - 1)
			sd := math.Sqrt(variance)

			tail := closes[len(closes)-PeriodShort:]
			want, _ := stats.StandardDeviationSample(stats.Float64Data(tail))
			assertClose(t, "stddev", sd, want, 1e-6)
		}
	}
}

// ───────────────────────── capacity and ordering ─────────────────────────

func TestWindow_EvictsFIFOAtCapacity(t *testing.T) {
	w := New()
	for i := 1; i <= Capacity+50; i++ {
		w.Ingest(bar(float64(i), 1))
	}
	if w.Len() != Capacity {
		t.Fatalf("Len = %d, want %d", w.Len(), Capacity)
	}

	got := w.Closes(Capacity)
	// Oldest surviving close is 51, newest is 250.
	if got[0] != 51 || got[len(got)-1] != float64(Capacity+50) {
		t.Errorf("window spans [%v, %v], want [51, %d]", got[0], got[len(got)-1], Capacity+50)
	}

	last, ok := w.LastClose()
	if !ok || last != float64(Capacity+50) {
		t.Errorf("LastClose = %v, %v", last, ok)
	}
	prev, ok := w.PrevClose()
	if !ok || prev != float64(Capacity+49) {
		t.Errorf("PrevClose = %v, %v", prev, ok)
	}
}

func TestCloses_Underfilled(t *testing.T) {
	w := New()
	for _, c := range []float64{10, 11, 12} {
		w.Ingest(bar(c, 1))
	}
	got := w.Closes(10)
	if len(got) != 3 || got[0] != 10 || got[2] != 12 {
		t.Errorf("Closes(10) = %v, want [10 11 12]", got)
	}
}

// ───────────────────────── Wilder state ─────────────────────────

// 14 deltas are needed before the averages exist: the 14th close still has
// only 13 deltas behind it, the 15th close completes the seed.
func TestWilderAvgs_ReadyAfterFullPeriod(t *testing.T) {
	w := New()
	for i := 1; i <= RSIPeriod; i++ { // 14 closes → 13 deltas
		w.Ingest(bar(100+float64(i), 1))
	}
	if _, _, ok := w.WilderAvgs(); ok {
		t.Fatal("WilderAvgs ready after 13 deltas")
	}

	w.Ingest(bar(200, 1)) // 15th close → 14th delta
	avgGain, avgLoss, ok := w.WilderAvgs()
	if !ok {
		t.Fatal("WilderAvgs not ready after 14 deltas")
	}
	// Deltas: thirteen +1 gains, then one +85 gain (115 → 200).
	// Seed avgGain = (13×1 + 85)/14 = 98/14 = 7.0
	assertClose(t, "avgGain", avgGain, 7.0, 1e-9)
	assertClose(t, "avgLoss", avgLoss, 0.0, 1e-9)
}

func TestWilderAvgs_SmoothingAfterSeed(t *testing.T) {
	w := New()
	// 15 closes stepping +2 each: seed avgGain = 2, avgLoss = 0.
	for i := 0; i < RSIPeriod+1; i++ {
		w.Ingest(bar(100+2*float64(i), 1))
	}
	// One −7 delta: avgLoss = (0×13 + 7)/14 = 0.5; avgGain = 2×13/14.
	last, _ := w.LastClose()
	w.Ingest(bar(last-7, 1))

	avgGain, avgLoss, ok := w.WilderAvgs()
	if !ok {
		t.Fatal("WilderAvgs not ready")
	}
	assertClose(t, "avgGain", avgGain, 2.0*13/14, 1e-9)
	assertClose(t, "avgLoss", avgLoss, 0.5, 1e-9)
}

// ───────────────────────── session accumulators ─────────────────────────

func TestSessionSums_AccumulateAndReset(t *testing.T) {
	w := New()
	w.Ingest(bar(10, 100)) // pv 1000
	w.Ingest(bar(20, 50))  // pv 1000
	pv, vol := w.SessionSums()
	if pv != 2000 || vol != 150 {
		t.Fatalf("SessionSums = %v, %v, want 2000, 150", pv, vol)
	}

	w.ResetSession()
	pv, vol = w.SessionSums()
	if pv != 0 || vol != 0 {
		t.Errorf("after reset: SessionSums = %v, %v", pv, vol)
	}
	if w.Len() != 2 {
		t.Errorf("reset must keep close history, Len = %d", w.Len())
	}
	if _, _, ok := w.WilderAvgs(); ok {
		// only 1 delta so far — still warming up, reset must not fake readiness
		t.Error("WilderAvgs unexpectedly ready")
	}
}

// ───────────────────────── checkpoint round-trip ─────────────────────────

// A restored window must be indistinguishable from the original: same
// accessor values now, and identical behavior for all future ingests.
func TestSnapshotRestore_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := New()
	price := 250.0
	for i := 0; i < 137; i++ {
		price += (rng.Float64() - 0.5) * 3
		w.Ingest(bar(price, int64(10+rng.Intn(90))))
	}

	r := Restore(w.Snapshot())

	compare := func(stage string) {
		t.Helper()
		if w.Len() != r.Len() {
			t.Fatalf("%s: Len %d vs %d", stage, w.Len(), r.Len())
		}
		for _, p := range []int{PeriodShort, PeriodMid, PeriodLong} {
			ws, wok := w.TrailingSum(p)
			rs, rok := r.TrailingSum(p)
			if wok != rok {
				t.Fatalf("%s: TrailingSum(%d) readiness %v vs %v", stage, p, wok, rok)
			}
			if wok {
				assertClose(t, "sum", rs, ws, 1e-7)
			}
		}
		wg, wl, wok := w.WilderAvgs()
		rg, rl, rok := r.WilderAvgs()
		if wok != rok {
			t.Fatalf("%s: Wilder readiness %v vs %v", stage, wok, rok)
		}
		if wok {
			assertClose(t, "avgGain", rg, wg, 1e-9)
			assertClose(t, "avgLoss", rl, wl, 1e-9)
		}
		wpv, wvol := w.SessionSums()
		rpv, rvol := r.SessionSums()
		if wvol != rvol {
			t.Fatalf("%s: volSum %d vs %d", stage, wvol, rvol)
		}
		assertClose(t, "pvSum", rpv, wpv, 1e-6)
	}

	compare("after restore")

	// Keep feeding both; behavior must stay identical past capacity.
	for i := 0; i < 150; i++ {
		price += (rng.Float64() - 0.5) * 3
		b := bar(price, int64(10+rng.Intn(90)))
		w.Ingest(b)
		r.Ingest(b)
	}
	compare("after continued ingest")
}
