package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const queueGroup = "workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	onLag    func(time.Duration)
	now      func() time.Time
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// LagObserver receives the time each event spent in the queue.
	LagObserver func(time.Duration)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("document-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		onLag:    options.LagObserver,
		now:      time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// uploadQueuedEvent is the wire form of one queued upload.
type uploadQueuedEvent struct {
	UploadID string    `json:"upload_id"`
	QueuedAt time.Time `json:"queued_at"`
}

func encodeEvent(uploadID string, queuedAt time.Time) ([]byte, error) {
	return json.Marshal(uploadQueuedEvent{UploadID: uploadID, QueuedAt: queuedAt.UTC()})
}

// decodeEvent also accepts a bare id so events published by older
// producers still drain.
func decodeEvent(data []byte) (uploadQueuedEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return uploadQueuedEvent{}, errors.New("empty event")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return uploadQueuedEvent{UploadID: trimmed}, nil
	}
	var event uploadQueuedEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return uploadQueuedEvent{}, fmt.Errorf("decode upload event: %w", err)
	}
	if event.UploadID == "" {
		return uploadQueuedEvent{}, errors.New("upload event without upload_id")
	}
	return event, nil
}

func (q *Queue) PublishUploadQueued(ctx context.Context, uploadID string) error {
	payload, err := encodeEvent(uploadID, q.now())
	if err != nil {
		return fmt.Errorf("encode upload event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("nats publish", err, classifyNATSError)
	}
	return nil
}

func (q *Queue) SubscribeUploadQueued(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Error("upload_event_invalid", "error", err, "payload_bytes", len(msg.Data))
			return
		}
		if q.onLag != nil && !event.QueuedAt.IsZero() {
			q.onLag(q.now().Sub(event.QueuedAt))
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event.UploadID); err != nil {
			slog.Error("worker_handler_failed", "upload_id", event.UploadID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
