package ringbuf

import (
	"sync"
	"testing"
	"time"

	"perpsignals/internal/model"
)

func bar(i int) model.Candle {
	return model.Candle{
		Symbol: "BTC",
		TS:     time.Unix(int64(i)*60, 0).UTC(),
		Open:   float64(i),
		High:   float64(i) + 1,
		Low:    float64(i) - 1,
		Close:  float64(i),
		Volume: 1,
	}
}

func TestRing_AppendAndWindow(t *testing.T) {
	r := New(4)

	r.Append(bar(1))
	r.Append(bar(2))
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}

	w := r.Window()
	if len(w) != 2 || w[0].Open != 1 || w[1].Open != 2 {
		t.Fatalf("window = %v", w)
	}

	last, ok := r.Last()
	if !ok || last.Open != 2 {
		t.Fatalf("last = %v ok=%v", last.Open, ok)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New(4) // capacity 4

	for i := 1; i <= 6; i++ {
		r.Append(bar(i))
	}
	if r.Len() != 4 {
		t.Fatalf("len = %d, want 4", r.Len())
	}
	w := r.Window()
	for i, want := range []float64{3, 4, 5, 6} {
		if w[i].Open != want {
			t.Fatalf("window[%d] = %v, want %v", i, w[i].Open, want)
		}
	}
	if r.Evicted() != 2 {
		t.Fatalf("evicted = %d, want 2", r.Evicted())
	}
}

func TestRing_ReplaceLast(t *testing.T) {
	r := New(4)
	if r.ReplaceLast(bar(1)) {
		t.Fatal("replace on empty ring should fail")
	}

	r.Append(bar(1))
	live := bar(1)
	live.Close = 42
	if !r.ReplaceLast(live) {
		t.Fatal("replace should succeed")
	}
	if r.Len() != 1 {
		t.Fatalf("replace must not grow the ring, len = %d", r.Len())
	}
	last, _ := r.Last()
	if last.Close != 42 {
		t.Fatalf("last close = %v, want 42", last.Close)
	}
}

func TestRing_WindowIsACopy(t *testing.T) {
	r := New(4)
	r.Append(bar(1))

	w := r.Window()
	w[0].Close = 999

	again := r.Window()
	if again[0].Close == 999 {
		t.Fatal("mutating the returned window must not touch the ring")
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Push far past capacity several times over to exercise index masking.
	for i := 1; i <= 25; i++ {
		r.Append(bar(i))
	}
	w := r.Window()
	if len(w) != 4 {
		t.Fatalf("len = %d, want 4", len(w))
	}
	for i, want := range []float64{22, 23, 24, 25} {
		if w[i].Open != want {
			t.Fatalf("window[%d] = %v, want %v", i, w[i].Open, want)
		}
	}
}

func TestRing_ConcurrentReaders(t *testing.T) {
	r := New(64)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
				r.Append(bar(i))
			}
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				w := r.Window()
				// Windows must always be internally ordered even while
				// the writer runs.
				for k := 1; k < len(w); k++ {
					if !w[k-1].TS.Before(w[k].TS) {
						t.Error("window out of order under concurrency")
						return
					}
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {300, 512},
	}
	for _, tc := range cases {
		if got := nextPow2(tc.in); got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
