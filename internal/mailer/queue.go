package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nkiryanov/authkeeper/internal/logger"
)

const (
	TaskTypeResetLink = "email:password_reset"
	QueueName         = "email"

	taskMaxRetry = 5
	taskTimeout  = time.Minute
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type resetLinkPayload struct {
	To    string `json:"to"`
	Token string `json:"token"`
}

// QueueSender puts emails to the queue, so slow SMTP never delays request
// The worker registered with NewWorkerMux sends them later
type QueueSender struct {
	enqueuer Enqueuer
}

func NewQueueSender(e Enqueuer) *QueueSender {
	return &QueueSender{enqueuer: e}
}

func (s *QueueSender) SendResetLink(ctx context.Context, to string, token string) error {
	body, err := json.Marshal(resetLinkPayload{To: to, Token: token})
	if err != nil {
		return err
	}

	// Task retention is zero: payload carries the token
	task := asynq.NewTask(TaskTypeResetLink, body, asynq.Queue(QueueName))
	_, err = s.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(taskMaxRetry), asynq.Timeout(taskTimeout))
	if err != nil {
		return fmt.Errorf("enqueue reset email: %w", err)
	}
	return nil
}

// Worker side: delivers queued emails with the given sender
type worker struct {
	sender Sender
	logger logger.Logger
}

func NewWorkerMux(sender Sender, l logger.Logger) *asynq.ServeMux {
	w := &worker{sender: sender, logger: l}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeResetLink, w.handleResetLink)
	return mux
}

func (w *worker) handleResetLink(ctx context.Context, task *asynq.Task) error {
	var payload resetLinkPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" || payload.Token == "" {
		return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
	}

	if err := w.sender.SendResetLink(ctx, payload.To, payload.Token); err != nil {
		w.logger.Error("Failed to deliver reset email, will retry", "error", err)
		return err
	}

	w.logger.Debug("Reset email delivered")
	return nil
}
