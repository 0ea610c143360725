package bus

import (
	"context"
	"testing"
	"time"

	"pairs-systemv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Tick](10)
	out1 := fo.Subscribe("sqlite")
	out2 := fo.Subscribe("agg")

	input := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Tick{Symbol: "BTCUSDT", Price: 42000, Size: 0.5}

	for name, out := range map[string]<-chan model.Tick{"sqlite": out1, "agg": out2} {
		select {
		case tk := <-out:
			if tk.Symbol != "BTCUSDT" {
				t.Errorf("%s: expected BTCUSDT, got %s", name, tk.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for tick", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New[int](1)
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	var drops []string
	fo.OnDrop = func(name string) { drops = append(drops, name) }

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	input <- 1
	<-fast
	input <- 2 // slow still holds 1
	<-fast
	close(input)
	<-done

	if len(drops) != 1 || drops[0] != "slow" {
		t.Errorf("expected one drop for slow, got %v", drops)
	}

	stats := fo.ChannelStats()
	if len(stats) != 2 || stats[1].Name != "slow" || stats[1].Len != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFanOut_ClosesOutputs(t *testing.T) {
	fo := New[int](1)
	out := fo.Subscribe("a")
	input := make(chan int)
	close(input)
	fo.Run(context.Background(), input)

	if _, ok := <-out; ok {
		t.Error("expected closed output")
	}
}

func TestFanOut_BlockingNeverDrops(t *testing.T) {
	fo := New[int](1)
	fo.Blocking = true
	fo.OnDrop = func(name string) { t.Errorf("unexpected drop for %s", name) }
	out := fo.Subscribe("sqlite")

	input := make(chan int)
	go fo.Run(context.Background(), input)
	go func() {
		for i := 0; i < 50; i++ {
			input <- i
		}
		close(input)
	}()

	var got []int
	for v := range out {
		got = append(got, v)
	}
	if len(got) != 50 || got[49] != 49 {
		t.Errorf("expected 50 ordered values, got %d (%v)", len(got), got)
	}
}
