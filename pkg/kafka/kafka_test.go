package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceServer/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type flakyHandler struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func (h *flakyHandler) Topic() string { return "ticks" }

func (h *flakyHandler) Handle(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(b)
	h.calls[key]++
	if h.calls[key] <= h.failures[key] {
		return errors.New("transient")
	}
	if key == "panic" {
		panic("bad payload")
	}
	return nil
}

func (h *flakyHandler) callsFor(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[key]
}

func TestConsumer_RetriesThenCommits(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	c, err := NewConsumer(logger.NewNop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	c.newRead = func(string) messageReader { return reader }

	h := &flakyHandler{
		failures: map[string]int{"ok-after-2": 2, "always": 100},
		calls:    map[string]int{},
	}
	c.RegisterHandler(h)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	reader.msgs <- kafka.Message{Offset: 1, Value: []byte("ok-after-2")}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte("always")}
	reader.msgs <- kafka.Message{Offset: 3, Value: []byte("panic")}

	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if got := reader.commits(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("commits = %v", got)
	}
	if n := h.callsFor("ok-after-2"); n != 3 {
		t.Fatalf("ok-after-2 handled %d times, want 3", n)
	}
	if n := h.callsFor("always"); n != 3 {
		t.Fatalf("always handled %d times, want 3 (1 + 2 retries)", n)
	}
}

func TestConsumer_RequiresBrokersAndHandlers(t *testing.T) {
	if _, err := NewConsumer(nil); err == nil {
		t.Fatal("expected error without brokers")
	}
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"b:9092"}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error without handlers")
	}
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "snappy", nil)

	if err := p.Publish(context.Background(), "events", []byte("k"), map[string]int{"rows": 3}); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), "events", nil, "raw"); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	var decoded map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil || decoded["rows"] != 3 {
		t.Fatalf("value = %s (%v)", w.msgs[0].Value, err)
	}
	if w.msgs[0].Topic != "events" || string(w.msgs[0].Key) != "k" {
		t.Fatalf("unexpected message %+v", w.msgs[0])
	}
	if string(w.msgs[1].Value) != "raw" {
		t.Fatalf("raw value = %q", w.msgs[1].Value)
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), "events", nil, "x"); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestBackoffWithJitter_Bounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		if d <= 0 || d > 100*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
