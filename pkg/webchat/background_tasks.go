package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/metrics"
	"github.com/go-go-golems/topicchat/pkg/protocol"
	"github.com/go-go-golems/topicchat/pkg/responder"
)

const (
	// NotificationsTopic is the bus topic background tasks publish to.
	NotificationsTopic = "topicchat.notifications"

	DefaultTaskDelay   = 5 * time.Second
	DefaultTaskTimeout = 30 * time.Second

	notificationPreviewRunes = 20
)

// TaskRequest identifies the chat message a background task was started for.
type TaskRequest struct {
	ClientID string
	TopicID  string
	AgentID  string
	Text     string
}

// TaskScheduler starts follow-up work for a chat message without blocking the caller.
type TaskScheduler interface {
	Schedule(req TaskRequest)
}

// NotificationEvent is the bus payload carrying one notification to one client.
type NotificationEvent struct {
	ClientID     string                       `json:"client_id"`
	TopicID      string                       `json:"topic_id,omitempty"`
	AgentID      string                       `json:"agent_id,omitempty"`
	Notification protocol.NotificationPayload `json:"notification"`
}

// NotificationFor builds the notification a finished task reports.
func NotificationFor(text string) protocol.NotificationPayload {
	preview := []rune(text)
	if len(preview) > notificationPreviewRunes {
		preview = preview[:notificationPreviewRunes]
	}
	n := protocol.NotificationPayload{
		ID:      uuid.NewString(),
		Message: fmt.Sprintf("Task related to '%s...' completed!", string(preview)),
		Title:   "Task Complete",
		Level:   "info",
	}
	if responder.RequestsNotification(text) {
		n.Title = "Action Complete"
		n.Level = "success"
	}
	return n
}

// BackgroundTaskRunner simulates slow follow-up work. Each task waits for the
// configured delay, then publishes a NotificationEvent. Tasks outlive the
// connection that started them; only Close cancels them.
type BackgroundTaskRunner struct {
	publisher message.Publisher
	topic     string
	delay     time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ TaskScheduler = (*BackgroundTaskRunner)(nil)

type TaskRunnerOption func(*BackgroundTaskRunner)

func WithTaskDelay(d time.Duration) TaskRunnerOption {
	return func(r *BackgroundTaskRunner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

func WithTaskTimeout(d time.Duration) TaskRunnerOption {
	return func(r *BackgroundTaskRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithTaskTopic(topic string) TaskRunnerOption {
	return func(r *BackgroundTaskRunner) {
		if topic != "" {
			r.topic = topic
		}
	}
}

func NewBackgroundTaskRunner(publisher message.Publisher, opts ...TaskRunnerOption) (*BackgroundTaskRunner, error) {
	if publisher == nil {
		return nil, errors.New("background task runner: publisher is nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &BackgroundTaskRunner{
		publisher: publisher,
		topic:     NotificationsTopic,
		delay:     DefaultTaskDelay,
		timeout:   DefaultTaskTimeout,
		logger:    log.With().Str("component", "background_tasks").Logger(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, o := range opts {
		o(r)
	}
	if r.timeout < r.delay {
		r.timeout = r.delay + time.Second
	}
	return r, nil
}

func (r *BackgroundTaskRunner) Schedule(req TaskRequest) {
	if r.baseCtx.Err() != nil {
		metrics.BackgroundTasks.WithLabelValues("cancelled").Inc()
		return
	}
	r.wg.Add(1)
	metrics.BackgroundTasksInFlight.Inc()
	go func() {
		defer r.wg.Done()
		defer metrics.BackgroundTasksInFlight.Dec()
		outcome := r.run(req)
		metrics.BackgroundTasks.WithLabelValues(outcome).Inc()
	}()
}

func (r *BackgroundTaskRunner) run(req TaskRequest) string {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()

	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return r.outcomeFor(ctx, req)
	case <-t.C:
	}

	ev := NotificationEvent{
		ClientID:     req.ClientID,
		TopicID:      req.TopicID,
		AgentID:      req.AgentID,
		Notification: NotificationFor(req.Text),
	}
	if err := r.publish(ev); err != nil {
		r.logger.Error().Err(err).Str("client_id", req.ClientID).Msg("publish notification failed")
		return "publish_error"
	}
	r.logger.Debug().Str("client_id", req.ClientID).Str("topic_id", req.TopicID).Msg("background task completed")
	return "published"
}

func (r *BackgroundTaskRunner) outcomeFor(ctx context.Context, req TaskRequest) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Warn().Str("client_id", req.ClientID).Dur("timeout", r.timeout).Msg("background task timed out")
		return "timeout"
	}
	return "cancelled"
}

func (r *BackgroundTaskRunner) publish(ev NotificationEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal notification event")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("client_id", ev.ClientID)
	return r.publisher.Publish(r.topic, msg)
}

// Close cancels outstanding tasks and waits for them to return.
func (r *BackgroundTaskRunner) Close() {
	r.cancel()
	r.wg.Wait()
}
