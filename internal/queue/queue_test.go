package queue

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stratalign/pmocast/internal/episode"
)

func seg(i int) episode.Segment {
	return episode.Segment{Speaker: episode.SpeakerAlex, Line: "line", Audio: []byte{byte(i)}, Index: i}
}

// drain takes every ready segment and returns their indices.
func drain(q *SegmentQueue) ([]int, Status) {
	var got []int
	for {
		s, st := q.Take()
		if st != Ready {
			return got, st
		}
		got = append(got, s.Index)
	}
}

func TestSegmentQueue_Empty(t *testing.T) {
	q := New()
	defer q.Close() //nolint:errcheck

	if c := q.Cursor(); c != -1 {
		t.Errorf("Expected cursor -1, got %d", c)
	}
	if w := q.Wanted(); w != 0 {
		t.Errorf("Expected wanted 0, got %d", w)
	}
	if _, st := q.Take(); st != Pending {
		t.Errorf("Expected pending, got %v", st)
	}

	q.MarkComplete()
	if _, st := q.Take(); st != Exhausted {
		t.Errorf("Expected exhausted, got %v", st)
	}
}

func TestSegmentQueue_PermutationOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for n := 1; n <= 12; n++ {
		for trial := 0; trial < 20; trial++ {
			q := New()
			order := r.Perm(n)

			var played []int
			for _, i := range order {
				if !q.Enqueue(seg(i)) {
					t.Fatalf("Enqueue(%d) rejected", i)
				}
				got, _ := drain(q)
				played = append(played, got...)
			}
			q.MarkComplete()
			got, st := drain(q)
			played = append(played, got...)

			if st != Exhausted {
				t.Errorf("Expected exhausted, got %v", st)
			}
			if len(played) != n {
				t.Fatalf("order %v: played %v", order, played)
			}
			for i, idx := range played {
				if idx != i {
					t.Fatalf("order %v: played %v", order, played)
				}
			}
		}
	}
}

func TestSegmentQueue_Scenario021(t *testing.T) {
	q := New()
	q.Enqueue(seg(0))
	q.Enqueue(seg(2))

	got, st := drain(q)
	if len(got) != 1 || got[0] != 0 || st != Pending {
		t.Fatalf("Expected [0] pending, got %v %v", got, st)
	}

	q.Enqueue(seg(1))
	got, _ = drain(q)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected [1 2], got %v", got)
	}
}

func TestSegmentQueue_RejectsDuplicatesAndStale(t *testing.T) {
	q := New()

	if !q.Enqueue(seg(0)) {
		t.Fatal("first enqueue rejected")
	}
	if q.Enqueue(seg(0)) {
		t.Error("duplicate accepted")
	}
	q.Take()
	q.Enqueue(seg(1))
	q.Take()
	if q.Enqueue(seg(1)) {
		t.Error("already played index accepted")
	}

	q.Close() //nolint:errcheck
	if q.Enqueue(seg(5)) {
		t.Error("enqueue after close accepted")
	}

	stats := q.GetStats()
	if stats.Enqueued != 2 || stats.Duplicates != 1 || stats.Rejected != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSegmentQueue_SkipsGaps(t *testing.T) {
	t.Run("skipped index", func(t *testing.T) {
		q := New()
		q.Enqueue(seg(0))
		q.Enqueue(seg(2))
		q.Skip(1)

		got, st := drain(q)
		if len(got) != 2 || got[1] != 2 || st != Pending {
			t.Errorf("Expected [0 2] pending, got %v %v", got, st)
		}
	})

	t.Run("gap after completion", func(t *testing.T) {
		q := New()
		q.Enqueue(seg(0))
		q.Enqueue(seg(3))
		q.MarkComplete()

		got, st := drain(q)
		if len(got) != 2 || got[0] != 0 || got[1] != 3 || st != Exhausted {
			t.Errorf("Expected [0 3] exhausted, got %v %v", got, st)
		}
	})

	t.Run("gap while streaming waits", func(t *testing.T) {
		q := New()
		q.Enqueue(seg(0))
		q.Enqueue(seg(3))

		got, st := drain(q)
		if len(got) != 1 || st != Pending {
			t.Errorf("Expected [0] pending, got %v %v", got, st)
		}
	})
}

func TestSegmentQueue_WaitWakesOnEnqueue(t *testing.T) {
	q := New()
	q.Enqueue(seg(0))
	q.Take()

	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()

	// An unrelated index must not release the waiter.
	q.Enqueue(seg(2))
	select {
	case err := <-done:
		t.Fatalf("Wait returned early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	q.Enqueue(seg(1))
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on enqueue")
	}

	if s, st := q.Take(); st != Ready || s.Index != 1 {
		t.Errorf("Expected index 1, got %d %v", s.Index, st)
	}
}

func TestSegmentQueue_WaitWakesOnComplete(t *testing.T) {
	q := New()
	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	q.MarkComplete()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on completion")
	}
}

func TestSegmentQueue_WaitCancellation(t *testing.T) {
	q := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	q.Close() //nolint:errcheck

	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on close")
	}
}

func TestSegmentQueue_TotalNeverDecreases(t *testing.T) {
	q := New()
	prev := 0
	check := func(step string) {
		t.Helper()
		n, exact := q.Total()
		if exact {
			t.Fatalf("%s: estimate reported exact", step)
		}
		if n < prev {
			t.Fatalf("%s: estimate went from %d to %d", step, prev, n)
		}
		prev = n
	}

	q.Enqueue(seg(0))
	check("enqueue 0")
	q.Take()
	check("take 0")
	if prev != 2 {
		t.Errorf("Expected estimate 2 after playing index 0, got %d", prev)
	}
	q.Enqueue(seg(4))
	check("enqueue 4")
	q.Enqueue(seg(1))
	check("enqueue 1")
	q.Take()
	check("take 1")

	q.Enqueue(seg(2))
	q.Enqueue(seg(3))
	q.MarkComplete()
	n, exact := q.Total()
	if !exact || n != 5 {
		t.Errorf("Expected exact total 5, got %d %v", n, exact)
	}
}

func TestSegmentQueue_Segments(t *testing.T) {
	q := New()
	for _, i := range []int{2, 0, 1} {
		q.Enqueue(seg(i))
	}
	segs := q.Segments()
	if !episode.Gapless(segs) || len(segs) != 3 {
		t.Errorf("Expected ordered segments, got %+v", segs)
	}
	if q.Received() != 3 {
		t.Errorf("Expected 3 received, got %d", q.Received())
	}
}
