// Package queue is a reliable Redis list work queue for inbound ledger events.
//
// Consumers move each message atomically from the pending list to a
// processing list, run the handler, then remove it. A message whose handler
// fails transiently is pushed back to pending; one that can never succeed is
// moved to a dead-letter list. Messages left in processing by a crash are
// recovered on start.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"resellhub/internal/model"
	"resellhub/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// ErrMalformed marks an event that can never be handled. Handlers wrap it to
// send a message straight to the dead-letter list.
var ErrMalformed = errors.New("malformed event")

// Handler processes one event.
type Handler interface {
	HandleEvent(ctx context.Context, ev model.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev model.Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, ev model.Event) error { return f(ctx, ev) }

// Config holds queue settings.
type Config struct {
	KeyPrefix   string
	PollTimeout time.Duration
	MaxAttempts int
	// HandlerTimeout bounds a single handler call.
	HandlerTimeout time.Duration
}

// moveScript removes one copy of ARGV[1] from KEYS[1] and, only if it was
// there, pushes ARGV[2] onto KEYS[2].
var moveScript = redis.NewScript(`
	if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 1 then
		redis.call("LPUSH", KEYS[2], ARGV[2])
		return 1
	else
		return 0
	end
`)

// RedisQueue is a reliable list queue on Redis.
type RedisQueue struct {
	client *redis.Client
	config Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRedisQueue creates a queue on an existing client.
func NewRedisQueue(client *redis.Client, config Config) *RedisQueue {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "resellhub:events"
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	return &RedisQueue{client: client, config: config, stopCh: make(chan struct{})}
}

func (q *RedisQueue) pendingKey() string    { return q.config.KeyPrefix + ":pending" }
func (q *RedisQueue) processingKey() string { return q.config.KeyPrefix + ":processing" }
func (q *RedisQueue) deadKey() string       { return q.config.KeyPrefix + ":dead" }

// Publish enqueues an event with payload encoded as JSON.
func (q *RedisQueue) Publish(ctx context.Context, typ model.EventType, payload interface{}) (string, error) {
	raw, ev, err := encodeEvent(typ, payload, time.Now())
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to publish event: %w", err)
	}
	return ev.ID, nil
}

// Start recovers orphaned messages and begins consuming with h.
func (q *RedisQueue) Start(h Handler) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	n, err := q.Recover(ctx)
	cancel()
	if err != nil {
		log.Printf("[Queue] Recover error: %v", err)
	} else if n > 0 {
		log.Printf("[Queue] Recovered %d in-flight events", n)
	}

	q.wg.Add(1)
	go q.run(h)
	log.Printf("[Queue] Started - prefix:%s, max attempts:%d", q.config.KeyPrefix, q.config.MaxAttempts)
}

func (q *RedisQueue) run(h Handler) {
	defer q.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-q.stopCh
		cancel()
	}()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		if _, err := q.Poll(ctx, h); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Queue] Poll error: %v", err)
			select {
			case <-time.After(time.Second):
			case <-q.stopCh:
				return
			}
		}
	}
}

// Poll waits up to the poll timeout for one event and processes it.
// It reports whether an event was taken.
func (q *RedisQueue) Poll(ctx context.Context, h Handler) (bool, error) {
	raw, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", q.config.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ev, err := decodeEvent(raw)
	if err != nil {
		log.Printf("[Queue] Undecodable event, dead-lettering: %v", err)
		return true, q.move(ctx, raw, q.deadKey(), raw)
	}

	hctx, cancel := context.WithTimeout(ctx, q.config.HandlerTimeout)
	herr := h.HandleEvent(hctx, ev)
	cancel()

	switch disposition(herr, ev.Attempts+1, q.config.MaxAttempts) {
	case ack:
		return true, q.client.LRem(ctx, q.processingKey(), 1, raw).Err()
	case retry:
		log.Printf("[Queue] Event %s (%s) failed, attempt %d: %v", ev.ID, ev.Type, ev.Attempts+1, herr)
		ev.Attempts++
		next, err := json.Marshal(ev)
		if err != nil {
			return true, err
		}
		return true, q.move(ctx, raw, q.pendingKey(), string(next))
	default:
		log.Printf("[Queue] Event %s (%s) dead-lettered: %v", ev.ID, ev.Type, herr)
		return true, q.move(ctx, raw, q.deadKey(), raw)
	}
}

func (q *RedisQueue) move(ctx context.Context, raw, dest, payload string) error {
	return moveScript.Run(ctx, q.client, []string{q.processingKey(), dest}, raw, payload).Err()
}

// Recover moves every message in the processing list back to pending.
// Only call it while no consumer is running.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.pendingKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Depth returns the lengths of the pending, processing and dead-letter lists.
func (q *RedisQueue) Depth(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	processing := pipe.LLen(ctx, q.processingKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return map[string]int64{
		"pending":    pending.Val(),
		"processing": processing.Val(),
		"dead":       dead.Val(),
	}, nil
}

// Stop stops consuming and waits for the in-flight event to finish.
func (q *RedisQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

type outcome int

const (
	ack outcome = iota
	retry
	deadLetter
)

func disposition(err error, attempt, maxAttempts int) outcome {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, ErrMalformed):
		return deadLetter
	case attempt >= maxAttempts:
		return deadLetter
	default:
		return retry
	}
}

func encodeEvent(typ model.EventType, payload interface{}, at time.Time) (string, model.Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", model.Event{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	ev := model.Event{
		ID:         uid.NewV7(),
		Type:       typ,
		Payload:    body,
		EnqueuedAt: at.UTC(),
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", model.Event{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return string(raw), ev, nil
}

func decodeEvent(raw string) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, err
	}
	if ev.Type == "" || len(ev.Payload) == 0 {
		return ev, fmt.Errorf("%w: missing type or payload", ErrMalformed)
	}
	return ev, nil
}
