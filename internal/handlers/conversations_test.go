package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/heartwise/backend/internal/counsel"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

type memoryConversationStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	messages      []models.Message
}

func newMemoryConversationStore(conversations ...models.Conversation) *memoryConversationStore {
	s := &memoryConversationStore{conversations: make(map[string]models.Conversation)}
	for _, c := range conversations {
		s.conversations[c.ID] = c
	}
	return s
}

func (s *memoryConversationStore) ListActive(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryConversationStore) Create(_ context.Context, c models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
	return nil
}

func (s *memoryConversationStore) Find(_ context.Context, id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, repositories.ErrNotFound
	}
	return c, nil
}

func (s *memoryConversationStore) Rename(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conversations[id]
	c.Title = title
	s.conversations[id] = c
	return nil
}

func (s *memoryConversationStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conversations[id]
	c.IsActive = false
	s.conversations[id] = c
	return nil
}

func (s *memoryConversationStore) Messages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryConversationStore) AddMessage(_ context.Context, m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

type recordingDispatcher struct {
	jobs []counsel.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job counsel.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func newConversationHandler(store *memoryConversationStore, notes *recordingNotifications, replies ReplyDispatcher) ConversationHandler {
	return ConversationHandler{
		Guard:         testGuard(),
		Conversations: store,
		Notifications: notes,
		Replies:       replies,
		NowFunc:       fixedClock,
	}
}

func TestConversationCreateDefaultsTitle(t *testing.T) {
	store := newMemoryConversationStore()
	handler := newConversationHandler(store, &recordingNotifications{}, &recordingDispatcher{})

	rec := httptest.NewRecorder()
	handler.Create(rec, newRequest(t, http.MethodPost, "/api/v1/conversations", memberID, map[string]string{"title": "  "}))
	assertStatus(t, rec, http.StatusCreated)

	id := decodeBody[map[string]string](t, rec)["id"]
	if got := store.conversations[id]; got.Title != "New Conversation" || got.UserID != memberID || !got.IsActive {
		t.Fatalf("unexpected conversation %+v", got)
	}
}

func TestConversationListRequiresUser(t *testing.T) {
	handler := newConversationHandler(newMemoryConversationStore(), &recordingNotifications{}, &recordingDispatcher{})

	rec := httptest.NewRecorder()
	handler.List(rec, newRequest(t, http.MethodGet, "/api/v1/conversations", "", nil))
	assertError(t, rec, http.StatusUnauthorized, "Not authenticated")
}

func TestConversationSendStoresNotifiesAndDispatches(t *testing.T) {
	store := newMemoryConversationStore(models.Conversation{ID: "c1", UserID: memberID, Title: "Dating", IsActive: true})
	notes := &recordingNotifications{}
	replies := &recordingDispatcher{}
	handler := newConversationHandler(store, notes, replies)

	content := strings.Repeat("a", 60)
	req := withPathValue(newRequest(t, http.MethodPost, "/api/v1/conversations/c1/messages", memberID, map[string]string{"content": "  " + content + "  "}), "id", "c1")
	rec := httptest.NewRecorder()
	handler.Send(rec, req)
	assertStatus(t, rec, http.StatusCreated)

	if len(store.messages) != 1 {
		t.Fatalf("expected one stored message got %d", len(store.messages))
	}
	stored := store.messages[0]
	if stored.Content != content || stored.IsAI || stored.UserID != memberID {
		t.Fatalf("unexpected stored message %+v", stored)
	}

	if len(notes.items) != 1 {
		t.Fatalf("expected one notification got %d", len(notes.items))
	}
	note := notes.items[0]
	wantDescription := `User sent: "` + strings.Repeat("a", 50) + `..."`
	if note.Type != models.NotificationNewMessage || note.Priority != models.PriorityMedium || note.Description != wantDescription {
		t.Fatalf("unexpected notification %+v", note)
	}

	if len(replies.jobs) != 1 || replies.jobs[0].ConversationID != "c1" || replies.jobs[0].UserMessage != content {
		t.Fatalf("unexpected dispatched jobs %+v", replies.jobs)
	}
}

func TestConversationSendAnswersWhenDispatchFails(t *testing.T) {
	tests := []struct {
		name    string
		replies ReplyDispatcher
	}{
		{name: "dispatcher closed", replies: &recordingDispatcher{err: counsel.ErrDispatcherClosed}},
		{name: "no dispatcher", replies: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryConversationStore(models.Conversation{ID: "c1", UserID: memberID, IsActive: true})
			handler := newConversationHandler(store, &recordingNotifications{}, nil)
			handler.Replies = tt.replies

			req := withPathValue(newRequest(t, http.MethodPost, "/api/v1/conversations/c1/messages", memberID, map[string]string{"content": "hello"}), "id", "c1")
			rec := httptest.NewRecorder()
			handler.Send(rec, req)
			assertStatus(t, rec, http.StatusCreated)

			var user, assistant []models.Message
			for _, m := range store.messages {
				if m.IsAI {
					assistant = append(assistant, m)
				} else {
					user = append(user, m)
				}
			}
			if len(user) != 1 || len(assistant) != 1 {
				t.Fatalf("expected one reply per user message, got user=%d assistant=%d", len(user), len(assistant))
			}
			if assistant[0].Content != counsel.FallbackReply || assistant[0].UserID != memberID || assistant[0].ConversationID != "c1" {
				t.Fatalf("unexpected fallback reply %+v", assistant[0])
			}
		})
	}
}

func TestConversationSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		content string
		status  int
		message string
	}{
		{name: "empty", userID: memberID, content: "   ", status: http.StatusBadRequest, message: "Message cannot be empty"},
		{name: "too long", userID: memberID, content: strings.Repeat("x", maxMessageLength+1), status: http.StatusBadRequest, message: "Message must be at most 4000 characters"},
		{name: "not owner", userID: adminID, content: "hi", status: http.StatusForbidden, message: "Unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryConversationStore(models.Conversation{ID: "c1", UserID: memberID, IsActive: true})
			replies := &recordingDispatcher{}
			handler := newConversationHandler(store, &recordingNotifications{}, replies)

			req := withPathValue(newRequest(t, http.MethodPost, "/api/v1/conversations/c1/messages", tt.userID, map[string]string{"content": tt.content}), "id", "c1")
			rec := httptest.NewRecorder()
			handler.Send(rec, req)
			assertError(t, rec, tt.status, tt.message)
			if len(replies.jobs) != 0 {
				t.Fatal("expected no reply job")
			}
		})
	}
}

func TestConversationDeleteHidesConversation(t *testing.T) {
	store := newMemoryConversationStore(models.Conversation{ID: "c1", UserID: memberID, IsActive: true})
	handler := newConversationHandler(store, &recordingNotifications{}, &recordingDispatcher{})

	rec := httptest.NewRecorder()
	handler.Delete(rec, withPathValue(newRequest(t, http.MethodDelete, "/api/v1/conversations/c1", memberID, nil), "id", "c1"))
	assertStatus(t, rec, http.StatusNoContent)

	rec = httptest.NewRecorder()
	handler.Messages(rec, withPathValue(newRequest(t, http.MethodGet, "/api/v1/conversations/c1/messages", memberID, nil), "id", "c1"))
	assertError(t, rec, http.StatusNotFound, "Conversation not found")
}

func TestConversationRename(t *testing.T) {
	store := newMemoryConversationStore(models.Conversation{ID: "c1", UserID: memberID, Title: "Old", IsActive: true})
	handler := newConversationHandler(store, &recordingNotifications{}, &recordingDispatcher{})

	rec := httptest.NewRecorder()
	handler.Rename(rec, withPathValue(newRequest(t, http.MethodPatch, "/api/v1/conversations/c1", memberID, map[string]string{"title": " New "}), "id", "c1"))
	assertStatus(t, rec, http.StatusOK)
	if got := store.conversations["c1"].Title; got != "New" {
		t.Fatalf("expected renamed title got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.Rename(rec, withPathValue(newRequest(t, http.MethodPatch, "/api/v1/conversations/missing", memberID, map[string]string{"title": "x"}), "id", "missing"))
	assertError(t, rec, http.StatusNotFound, "Conversation not found")
}
