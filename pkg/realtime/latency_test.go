package realtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aurelay/pkg/realtime"
)

func TestLatencyRecorder_TimeToFirstAudio(t *testing.T) {
	t.Parallel()
	rec := realtime.NewLatencyRecorder()

	if _, ok := rec.TimeToFirstAudio(); ok {
		t.Fatal("TTFA on an empty recorder should be unavailable")
	}

	rec.Record(realtime.MarkConnectRequested)
	time.Sleep(10 * time.Millisecond)
	rec.Record(realtime.MarkFirstAudio)
	rec.Record(realtime.MarkFirstAudio) // later occurrences are ignored

	d, ok := rec.TimeToFirstAudio()
	if !ok {
		t.Fatal("TTFA should be available")
	}
	if d <= 0 || d > time.Second {
		t.Errorf("TTFA = %v, want a small positive duration", d)
	}
}

func TestLatencyRecorder_MarksAreAppendOnlyCopies(t *testing.T) {
	t.Parallel()
	rec := realtime.NewLatencyRecorder()
	rec.Record(realtime.MarkConnectRequested)

	marks := rec.Marks()
	marks[0].Name = "mutated"

	if got := rec.Marks()[0].Name; got != realtime.MarkConnectRequested {
		t.Errorf("Marks() exposed internal state: %q", got)
	}
}

func TestLatencyRecorder_Reset(t *testing.T) {
	t.Parallel()
	rec := realtime.NewLatencyRecorder()
	rec.Record(realtime.MarkConnectRequested)
	rec.Reset()

	if n := len(rec.Marks()); n != 0 {
		t.Errorf("marks after Reset = %d, want 0", n)
	}
}

func TestLatencyRecorder_ConcurrentRecording(t *testing.T) {
	t.Parallel()
	rec := realtime.NewLatencyRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.Record(realtime.MarkFirstAudio)
				rec.Marks()
			}
		}()
	}
	wg.Wait()

	if n := len(rec.Marks()); n != 800 {
		t.Errorf("marks = %d, want 800", n)
	}
}
