package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// fakeSource feeds scripted messages to the consume loop. Once the script is
// exhausted (or fetchErr is set and returned), FetchMessage blocks until the
// context is cancelled, like a reader on an idle partition.
type fakeSource struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	fetchErr error
	fetches  int
	commits  []kafka.Message
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	f.fetches++
	if f.fetchErr != nil {
		f.mu.Unlock()
		return kafka.Message{}, f.fetchErr
	}
	if len(f.msgs) > 0 {
		msg := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

func newTestConsumer(src messageSource, workers int) *TaskConsumer {
	return &TaskConsumer{
		reader:  src,
		workers: workers,
		logger:  logger.New("test", "", ""),
	}
}

func taskMessage(t *testing.T, task models.AnalysisTask) kafka.Message {
	t.Helper()
	value, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("failed to marshal task: %v", err)
	}
	return kafka.Message{Value: value}
}

func TestConsumerDispatchesAndCommits(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		taskMessage(t, models.AnalysisTask{NoteID: 1, UserID: 7, Text: "hello"}),
	}}
	c := newTestConsumer(src, 2)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var handled []models.AnalysisTask
	c.Start(ctx, func(_ context.Context, task models.AnalysisTask) {
		mu.Lock()
		handled = append(handled, task)
		mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if src.commitCount() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0].NoteID != 1 || handled[0].Text != "hello" {
		t.Errorf("unexpected handled tasks: %+v", handled)
	}
	if src.commitCount() != 1 {
		t.Errorf("expected 1 committed message, got %d", src.commitCount())
	}
}

func TestConsumerDropsAndCommitsCorruptMessage(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Value: []byte("not json at all")},
	}}
	c := newTestConsumer(src, 1)

	ctx, cancel := context.WithCancel(context.Background())
	var handlerCalls int
	var mu sync.Mutex
	c.Start(ctx, func(_ context.Context, _ models.AnalysisTask) {
		mu.Lock()
		handlerCalls++
		mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if src.commitCount() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if handlerCalls != 0 {
		t.Errorf("corrupt message must not reach the handler, got %d calls", handlerCalls)
	}
	// The offset must still be committed or the message would loop forever.
	if src.commitCount() != 1 {
		t.Errorf("expected the corrupt message to be committed, got %d commits", src.commitCount())
	}
}

func TestConsumerBacksOffOnFetchError(t *testing.T) {
	src := &fakeSource{fetchErr: errors.New("broker down")}
	c := newTestConsumer(src, 1)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, func(_ context.Context, _ models.AnalysisTask) {})

	// With a one-second backoff only the initial fetch (plus at most one
	// more) can happen in this window. A spinning loop would rack up
	// thousands.
	time.Sleep(150 * time.Millisecond)
	fetches := src.fetchCount()

	cancel()
	c.Wait()

	if fetches > 2 {
		t.Errorf("fetch loop is spinning: %d fetches in 150ms", fetches)
	}
	if fetches == 0 {
		t.Error("fetch loop never ran")
	}
}
