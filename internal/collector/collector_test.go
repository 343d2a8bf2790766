package collector

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"fibpool/internal/progress"
	"fibpool/internal/sink"
)

func TestCollectorReportsEveryRecord(t *testing.T) {
	s := sink.New(0)
	ctx := context.Background()
	_ = s.Enqueue(ctx, sink.Record{WorkerID: 0, Seq: 0, Value: 55})
	_ = s.Enqueue(ctx, sink.Record{WorkerID: 1, Seq: 1, Value: 89})
	s.Close()

	buf := &bytes.Buffer{}
	c := New(s, buf)

	if n := c.Run(); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != "0, 55" || lines[1] != "1, 89" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestCollectorNotifiesObserversAndHooks(t *testing.T) {
	s := sink.New(0)
	ctx := context.Background()
	for i := range 4 {
		_ = s.Enqueue(ctx, sink.Record{WorkerID: i % 2, Seq: i, Value: int64(i)})
	}
	s.Close()

	tracker := progress.NewTracker([]int{2, 2})
	var hooked []sink.Record

	c := New(s, nil,
		WithObserver(tracker),
		WithObserver(nil),
		WithRecordHook(func(rec sink.Record) { hooked = append(hooked, rec) }),
		WithRecordHook(nil),
	)
	c.Run()

	if !tracker.Done() {
		t.Errorf("expected tracker to be done, got %+v", tracker.Snapshot())
	}
	if len(hooked) != 4 {
		t.Fatalf("expected 4 hooked records, got %d", len(hooked))
	}
	for i, rec := range hooked {
		if rec.Seq != i {
			t.Errorf("expected arrival order, got seq %d at %d", rec.Seq, i)
		}
	}
}

func TestCollectorWaitsUntilClosed(t *testing.T) {
	s := sink.New(0)
	c := New(s, nil)
	c.Start()
	// Double start should be no-op
	c.Start()

	_ = s.Enqueue(context.Background(), sink.Record{Value: 1})

	select {
	case <-c.Done():
		t.Fatal("collector finished while the sink was still open")
	case <-time.After(20 * time.Millisecond):
	}

	_ = s.Enqueue(context.Background(), sink.Record{Value: 2})
	s.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("collector did not finish after close")
	}
	if n := c.Wait(); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestCollectorRunAfterStart(t *testing.T) {
	s := sink.New(0)
	c := New(s, nil)
	c.Start()
	s.Close()

	if n := c.Run(); n != 0 {
		t.Errorf("expected 0 records, got %d", n)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, bytes.ErrTooLarge
}

func TestCollectorKeepsCountingWhenOutputFails(t *testing.T) {
	s := sink.New(0)
	_ = s.Enqueue(context.Background(), sink.Record{Value: 1})
	s.Close()

	c := New(s, failingWriter{})
	if n := c.Run(); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}
