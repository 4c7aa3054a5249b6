package bus

import (
	"context"
	"testing"
	"time"

	"screener-stream/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("hub")
	out2 := fo.Subscribe("redis")

	input := make(chan model.Update, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Update{
		Symbol:   "RELIANCE",
		Snapshot: model.StockSnapshot{Symbol: "RELIANCE", Price: 2400},
	}

	for _, out := range []<-chan model.Update{out1, out2} {
		select {
		case u := <-out:
			if u.Symbol != "RELIANCE" {
				t.Errorf("expected symbol RELIANCE, got %s", u.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for update")
		}
	}
}

func TestFanOut_DropsForSlowConsumerOnly(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe("slow") // capacity 1, never drained
	fast := fo.Subscribe("fast")

	drops := make(chan string, 16)
	fo.OnDrop = func(name string) { drops <- name }

	input := make(chan model.Update, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	got := make(chan model.Update)
	go func() {
		for u := range fast {
			got <- u
		}
	}()

	// Pace the input on the fast consumer so only slow ever overflows.
	for i := 0; i < 3; i++ {
		input <- model.Update{Symbol: "TCS"}
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatalf("fast consumer missed update %d", i+1)
		}
	}

	// slow got one buffered update; subsequent sends dropped for it.
	dropCount := 0
	timeout := time.After(500 * time.Millisecond)
drain:
	for {
		select {
		case name := <-drops:
			if name != "slow" {
				t.Errorf("drop reported for %q, want slow", name)
			}
			dropCount++
		case <-timeout:
			break drain
		}
	}
	if dropCount != 2 {
		t.Errorf("drops = %d, want 2", dropCount)
	}
	if len(slow) != 1 {
		t.Errorf("slow channel holds %d, want 1", len(slow))
	}
}

func TestFanOut_ClosesOutputsWhenInputCloses(t *testing.T) {
	fo := New(4)
	out := fo.Subscribe("hub")

	input := make(chan model.Update)
	go fo.Run(context.Background(), input)
	close(input)

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel, got value")
		}
	case <-time.After(time.Second):
		t.Fatal("output never closed")
	}
}
