package kafka

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// Backoff bounds the wait between retries of a failing message.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var DefaultBackoff = Backoff{Initial: 200 * time.Millisecond, Max: 10 * time.Second}

type Consumer struct {
	r       *kafka.Reader
	workers int
	backoff Backoff
	log     *slog.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, backoff: DefaultBackoff, log: log}
}

// Start dispatches fetched messages to the worker pool until ctx ends. Every partition is
// pinned to one worker, which handles its messages in offset order and retries a failing
// message in place. An offset is therefore committed only after every earlier message of
// its partition succeeded.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if err := c.handle(ctx, h, m); err != nil {
					// ctx ended mid-retry; the message stays uncommitted
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Error("commit_failed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
				}
			}
		}(queues[i])
	}
	defer wg.Wait()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	for {
		// FetchMessage does not commit; ReadMessage would commit before the handler ran.
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case queues[workerFor(m, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	return retry(ctx, c.backoff, func(attempt int) error {
		err := h(ctx, m)
		if err != nil && ctx.Err() == nil {
			c.log.Warn("handler_failed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset,
				"attempt", attempt, "error", err)
		}
		return err
	})
}

// retry calls fn until it succeeds or ctx ends, doubling the wait between attempts up to
// b.Max. It returns the context error when it gives up.
func retry(ctx context.Context, b Backoff, fn func(attempt int) error) error {
	wait := b.Initial
	for attempt := 1; ; attempt++ {
		if fn(attempt) == nil {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if wait *= 2; wait > b.Max {
			wait = b.Max
		}
	}
}

// workerFor keeps all messages of one topic partition on the same worker.
func workerFor(m kafka.Message, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.Topic))
	return int((h.Sum32() + uint32(m.Partition)) % uint32(workers))
}
