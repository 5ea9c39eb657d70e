package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

func scoredRecord(id string, score float64, hallucination bool) *model.AuditRecord {
	return &model.AuditRecord{
		JobID:             id,
		State:             model.StateScored,
		FaithfulnessScore: score,
		Hallucination:     hallucination,
	}
}

func failedRecord(id string) *model.AuditRecord {
	return &model.AuditRecord{
		JobID:       id,
		State:       model.StateFailed,
		FailedStage: "decompose",
		Error:       "backend unreachable",
	}
}

func newTestHub(historySize int) *Hub {
	return NewHub(model.BroadcastConfig{
		HistorySize:     historySize,
		MetricsInterval: time.Hour, // Tests drive metrics explicitly
	}, nil)
}

func receiveMessage(t *testing.T, sub *Subscriber) Message {
	t.Helper()
	select {
	case data, ok := <-sub.Receive():
		if !ok {
			t.Fatal("subscriber channel closed unexpectedly")
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return Message{}
	}
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	hub := newTestHub(10)
	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(scoredRecord("job-1", 0.5, true))

	msg := receiveMessage(t, sub)
	if msg.Type != "audit_result" {
		t.Errorf("expected audit_result, got %s", msg.Type)
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var record model.AuditRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if record.JobID != "job-1" {
		t.Errorf("expected job-1, got %s", record.JobID)
	}
}

func TestHub_HistoryBound(t *testing.T) {
	hub := newTestHub(3)

	for i := 0; i < 5; i++ {
		hub.Publish(scoredRecord(fmt.Sprintf("job-%d", i), 1.0, false))
	}

	history := hub.History()
	if len(history) != 3 {
		t.Fatalf("expected history bounded to 3, got %d", len(history))
	}
	// Oldest first, FIFO eviction
	for i, want := range []string{"job-2", "job-3", "job-4"} {
		if history[i].JobID != want {
			t.Errorf("history[%d] = %s, want %s", i, history[i].JobID, want)
		}
	}
}

func TestHub_Metrics(t *testing.T) {
	hub := newTestHub(10)

	hub.Publish(scoredRecord("job-1", 1.0, false))
	hub.Publish(scoredRecord("job-2", 0.5, true))
	hub.Publish(failedRecord("job-3"))

	snap := hub.Metrics()
	if snap.TotalProcessed != 3 {
		t.Errorf("expected 3 processed, got %d", snap.TotalProcessed)
	}
	if snap.AverageFaithfulness != 0.75 {
		t.Errorf("expected average 0.75 over scored audits, got %v", snap.AverageFaithfulness)
	}
	if snap.HallucinationRate != 0.5 {
		t.Errorf("expected hallucination rate 0.5, got %v", snap.HallucinationRate)
	}
}

func TestHub_MetricsEmpty(t *testing.T) {
	hub := newTestHub(10)

	snap := hub.Metrics()
	if snap.TotalProcessed != 0 || snap.AverageFaithfulness != 0 || snap.HallucinationRate != 0 {
		t.Errorf("expected zero metrics before any audit, got %+v", snap)
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := newTestHub(1000)
	slow := hub.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		// Well past the subscriber buffer; must not deadlock
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(scoredRecord(fmt.Sprintf("job-%d", i), 1.0, false))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}

	if len(slow.send) != subscriberBuffer {
		t.Errorf("expected full buffer of %d, got %d", subscriberBuffer, len(slow.send))
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := newTestHub(10)
	sub := hub.Subscribe()

	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	sub.Close()

	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", hub.SubscriberCount())
	}

	select {
	case _, ok := <-sub.Receive():
		if ok {
			t.Error("expected channel closed, got a message")
		}
	case <-time.After(time.Second):
		t.Error("expected channel closed immediately")
	}

	// Double close is safe
	sub.Close()
}

func TestHub_MultipleSubscribers(t *testing.T) {
	hub := newTestHub(10)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	hub.Publish(scoredRecord("job-1", 1.0, false))

	for _, sub := range []*Subscriber{a, b} {
		msg := receiveMessage(t, sub)
		if msg.Type != "audit_result" {
			t.Errorf("expected audit_result, got %s", msg.Type)
		}
	}
}

func TestHub_ConcurrentPublishAndClose(t *testing.T) {
	// Clients disconnect while workers publish; a send must never land on a
	// closed channel
	hub := newTestHub(10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := hub.Subscribe()

		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Publish(scoredRecord(fmt.Sprintf("job-%d-%d", n, j), 1.0, false))
			}
		}(i)
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()

	if hub.SubscriberCount() != 0 {
		t.Errorf("expected all subscribers detached, got %d", hub.SubscriberCount())
	}
}

func TestHub_SubscriberCountInMetrics(t *testing.T) {
	hub := newTestHub(10)
	sub := hub.Subscribe()
	defer sub.Close()

	if got := hub.Metrics().ActiveSubscribers; got != 1 {
		t.Errorf("expected 1 active subscriber, got %d", got)
	}
}
