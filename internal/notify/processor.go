package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Handlers deliver advance:* tasks to the inbox and by e-mail.
type Handlers struct {
	inbox  Inbox
	mailer Mailer
	logger *slog.Logger
}

func NewHandlers(inbox Inbox, mailer Mailer, logger *slog.Logger) *Handlers {
	return &Handlers{inbox: inbox, mailer: mailer, logger: logger}
}

// Register binds every advance task type on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskAdvanceApproved, h.HandleAdvance)
	mux.HandleFunc(TaskAdvanceRejected, h.HandleAdvance)
	mux.HandleFunc(TaskAdvanceDisbursed, h.HandleAdvance)
}

// HandleAdvance stores the inbox item, then sends the e-mail. A mail
// failure is returned so asynq retries; the retry may store the inbox item
// again, which is preferred over losing the mail.
func (h *Handlers) HandleAdvance(ctx context.Context, t *asynq.Task) error {
	var p AdvancePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := h.inbox.Add(ctx, Notification{
		UserID:    p.WorkerID,
		Type:      t.Type(),
		Title:     p.Title,
		Body:      p.Envelope.Body,
		Reference: p.RequestID,
	}); err != nil {
		h.logger.ErrorContext(ctx, "inbox write failed", "task", t.Type(), "request_id", p.RequestID, "error", err)
		return err
	}
	if p.Envelope.To == "" {
		h.logger.InfoContext(ctx, "no e-mail on file", "task", t.Type(), "worker_id", p.WorkerID)
		return nil
	}
	if err := h.mailer.Send(ctx, p.Envelope.To, p.Envelope.Subject, p.Envelope.Body); err != nil {
		h.logger.ErrorContext(ctx, "mail send failed", "task", t.Type(), "request_id", p.RequestID, "error", err)
		return err
	}
	h.logger.InfoContext(ctx, "notification sent", "task", t.Type(), "request_id", p.RequestID, "to", p.Envelope.To)
	return nil
}

// NewServer builds the asynq server with the queue weights used by
// cmd/worker.
func NewServer(redisAddr string, concurrency int, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical:      6,
			QueueNotifications: 3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.ErrorContext(ctx, "task failed", "type", task.Type(), "error", err)
		}),
	})
}

// Inline is an Enqueuer that runs the handler in the calling goroutine.
// It serves single-process deployments that have no Redis.
type Inline struct {
	h *Handlers
}

var _ Enqueuer = (*Inline)(nil)

func NewInline(h *Handlers) *Inline {
	return &Inline{h: h}
}

func (i *Inline) EnqueueContext(ctx context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if err := i.h.HandleAdvance(ctx, task); err != nil {
		return nil, err
	}
	return &asynq.TaskInfo{Type: task.Type(), State: asynq.TaskStateCompleted}, nil
}
