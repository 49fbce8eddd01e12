package counsel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/metrics"
	"github.com/heartwise/backend/internal/models"
)

// Job asks for one assistant reply to a user message.
type Job struct {
	ConversationID string `json:"conversationId"`
	UserMessage    string `json:"userMessage"`
	RequestID      string `json:"requestId,omitempty"`

	// QueuedAt and Redelivered are set by dispatchers that can hand the same
	// job out twice.
	QueuedAt    time.Time `json:"queuedAt,omitzero"`
	Redelivered bool      `json:"redelivered,omitempty"`
}

// FallbackMessage builds the assistant message written when no generated
// reply can be stored for a conversation.
func FallbackMessage(conversation models.Conversation, now time.Time) models.Message {
	return models.Message{
		ID:                 uuid.NewString(),
		ConversationID:     conversation.ID,
		UserID:             conversation.UserID,
		Content:            FallbackReply,
		IsAI:               true,
		BiblicalReferences: []string{FallbackReference},
		CreatedAt:          now,
	}
}

// ConversationStore is the persistence the responder needs.
type ConversationStore interface {
	Find(ctx context.Context, id string) (models.Conversation, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	AddMessage(ctx context.Context, message models.Message) error
}

// Responder turns a Job into exactly one assistant message.
type Responder struct {
	store         ConversationStore
	completer     Completer
	historyWindow int
	timeout       time.Duration
	now           func() time.Time
}

// ResponderOptions tunes a Responder.
type ResponderOptions struct {
	HistoryWindow int
	Timeout       time.Duration
}

// NewResponder constructs a Responder.
func NewResponder(store ConversationStore, completer Completer, opts ResponderOptions) *Responder {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &Responder{
		store:         store,
		completer:     completer,
		historyWindow: opts.HistoryWindow,
		timeout:       opts.Timeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs a job and logs the outcome. It satisfies the dispatcher handler signature.
func (r *Responder) Handle(ctx context.Context, job Job) {
	ctx, span := logging.StartSpan(ctx, "counsel.respond")
	defer span.End()

	msg, err := r.Respond(ctx, job)
	logger := logging.FromContext(ctx)
	if err != nil {
		logger.Error("assistant reply not written", "conversationId", job.ConversationID, "error", err)
		return
	}
	logger.Info("assistant reply written", "conversationId", job.ConversationID, "messageId", msg.ID, "references", len(msg.BiblicalReferences))
}

// Respond generates and stores the assistant reply for job. Any failure while
// building the prompt, calling the model, or saving the reply falls back to a
// fixed encouraging message so the user always receives one answer. An error
// is returned only when the conversation is gone or the fallback itself could
// not be saved.
func (r *Responder) Respond(ctx context.Context, job Job) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conversation, err := r.store.Find(ctx, job.ConversationID)
	if err != nil {
		return models.Message{}, fmt.Errorf("load conversation: %w", err)
	}

	if job.Redelivered {
		if prior, ok := r.answered(ctx, job); ok {
			logging.FromContext(ctx).Info("redelivered job already answered", "conversationId", job.ConversationID, "messageId", prior.ID)
			return prior, nil
		}
	}

	reply, err := r.generate(ctx, job)
	if err == nil {
		reply.ConversationID = conversation.ID
		reply.UserID = conversation.UserID
		if err = r.store.AddMessage(ctx, reply); err == nil {
			metrics.AIReplies.WithLabelValues(metrics.OutcomeAI).Inc()
			return reply, nil
		}
		err = fmt.Errorf("save reply: %w", err)
	}

	logging.FromContext(ctx).Warn("assistant reply failed, using fallback", "conversationId", job.ConversationID, slog.Any("error", err))
	return r.writeFallback(ctx, conversation)
}

// Abandon writes the fallback reply for a job that will never reach Handle,
// such as one still queued when the dispatcher stops.
func (r *Responder) Abandon(ctx context.Context, job Job) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.FromContext(ctx)

	findCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conversation, err := r.store.Find(findCtx, job.ConversationID)
	if err != nil {
		logger.Error("abandoned reply job lost", "conversationId", job.ConversationID, "error", err)
		return
	}
	if _, err := r.writeFallback(ctx, conversation); err != nil {
		logger.Error("abandoned reply job lost", "conversationId", job.ConversationID, "error", err)
		return
	}
	logger.Warn("abandoned reply job answered with fallback", "conversationId", job.ConversationID)
}

// answered reports the assistant message already written for job, if any.
// The reply to a job is the first assistant message stored at or after the
// time the job was queued.
func (r *Responder) answered(ctx context.Context, job Job) (models.Message, bool) {
	if job.QueuedAt.IsZero() {
		return models.Message{}, false
	}
	history, err := r.store.RecentMessages(ctx, job.ConversationID, r.historyWindow)
	if err != nil {
		return models.Message{}, false
	}
	for _, m := range history {
		if m.IsAI && !m.CreatedAt.Before(job.QueuedAt) {
			return m, true
		}
	}
	return models.Message{}, false
}

func (r *Responder) writeFallback(ctx context.Context, conversation models.Conversation) (models.Message, error) {
	fallback := FallbackMessage(conversation, r.now())
	// The fallback must survive a generation timeout that consumed ctx.
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer saveCancel()
	if err := r.store.AddMessage(saveCtx, fallback); err != nil {
		return models.Message{}, fmt.Errorf("save fallback reply: %w", err)
	}
	metrics.AIReplies.WithLabelValues(metrics.OutcomeFallback).Inc()
	return fallback, nil
}

func (r *Responder) generate(ctx context.Context, job Job) (models.Message, error) {
	if r.completer == nil {
		return models.Message{}, fmt.Errorf("no completer configured")
	}

	history, err := r.store.RecentMessages(ctx, job.ConversationID, r.historyWindow)
	if err != nil {
		return models.Message{}, fmt.Errorf("load history: %w", err)
	}

	prompt := make([]ChatMessage, 0, len(history)+2)
	prompt = append(prompt, ChatMessage{Role: RoleSystem, Content: SystemPrompt})
	for _, m := range history {
		role := RoleUser
		if m.IsAI {
			role = RoleAssistant
		}
		prompt = append(prompt, ChatMessage{Role: role, Content: m.Content})
	}
	prompt = append(prompt, ChatMessage{Role: RoleUser, Content: job.UserMessage})

	text, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		return models.Message{}, err
	}

	return models.Message{
		ID:                 uuid.NewString(),
		Content:            text,
		IsAI:               true,
		BiblicalReferences: ExtractReferences(text),
		CreatedAt:          r.now(),
	}, nil
}
