package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

type memoryResetStore struct {
	mu        sync.Mutex
	tokens    []models.PasswordResetToken
	passwords map[string]string
}

func (s *memoryResetStore) Create(_ context.Context, token models.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *memoryResetStore) FindActiveForUser(_ context.Context, userID string, now time.Time) (models.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.UserID == userID && t.Usable(now) {
			return t, nil
		}
	}
	return models.PasswordResetToken{}, repositories.ErrNotFound
}

func (s *memoryResetStore) FindByToken(_ context.Context, token string) (models.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == token {
			return t, nil
		}
	}
	return models.PasswordResetToken{}, repositories.ErrNotFound
}

func (s *memoryResetStore) ListUnusedForUser(_ context.Context, userID string) ([]models.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PasswordResetToken
	for _, t := range s.tokens {
		if t.UserID == userID && !t.IsUsed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryResetStore) Consume(_ context.Context, token, passwordHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tokens {
		if t.Token == token && t.Usable(now) {
			s.tokens[i].IsUsed = true
			if s.passwords == nil {
				s.passwords = make(map[string]string)
			}
			s.passwords[t.UserID] = passwordHash
			return t.UserID, nil
		}
	}
	return "", repositories.ErrNotFound
}

type recordingSessions struct {
	SessionManager
	revokedFor []string
}

func (s *recordingSessions) RevokeAll(_ context.Context, userID string) error {
	s.revokedFor = append(s.revokedFor, userID)
	return nil
}

func newResetHandler(resets *memoryResetStore, sessions SessionManager) PasswordResetHandler {
	return PasswordResetHandler{
		Users:        newInMemoryUserStore(models.User{ID: memberID, Email: memberEmail}),
		Resets:       resets,
		Sessions:     sessions,
		FrontendURL:  "https://heartwise.example",
		ExposeTokens: true,
		NowFunc:      fixedClock,
	}
}

func TestPasswordResetRequest(t *testing.T) {
	resets := &memoryResetStore{}
	handler := newResetHandler(resets, nil)

	rec := httptest.NewRecorder()
	handler.Request(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/request", "", map[string]string{"email": memberEmail}))
	assertStatus(t, rec, http.StatusOK)
	first := decodeBody[resetRequestResponse](t, rec)
	if first.Message != resetRequestedMessage || first.Token == "" {
		t.Fatalf("unexpected response %+v", first)
	}
	if !strings.HasPrefix(first.ResetURL, "https://heartwise.example/reset-password?token=") {
		t.Fatalf("unexpected reset url %q", first.ResetURL)
	}
	if got := resets.tokens[0].ExpiresAt; !got.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("expected one hour expiry got %v", got)
	}

	rec = httptest.NewRecorder()
	handler.Request(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/request", "", map[string]string{"email": memberEmail}))
	second := decodeBody[resetRequestResponse](t, rec)
	if second.Message != resetPendingMessage || second.Token != first.Token {
		t.Fatalf("expected pending token to be reused, got %+v", second)
	}
	if len(resets.tokens) != 1 {
		t.Fatalf("expected a single token got %d", len(resets.tokens))
	}
}

func TestPasswordResetRequestUnknownEmail(t *testing.T) {
	resets := &memoryResetStore{}
	handler := newResetHandler(resets, nil)

	rec := httptest.NewRecorder()
	handler.Request(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/request", "", map[string]string{"email": "stranger@example.com"}))
	assertStatus(t, rec, http.StatusOK)
	resp := decodeBody[resetRequestResponse](t, rec)
	if resp.Message != resetUnknownMessage || resp.Token != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resets.tokens) != 0 {
		t.Fatal("expected no token for unknown email")
	}
}

func TestPasswordResetTokensHiddenOutsideDevelopment(t *testing.T) {
	handler := newResetHandler(&memoryResetStore{}, nil)
	handler.ExposeTokens = false

	rec := httptest.NewRecorder()
	handler.Request(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/request", "", map[string]string{"email": memberEmail}))
	resp := decodeBody[resetRequestResponse](t, rec)
	if resp.Token != "" || resp.ResetURL != "" {
		t.Fatalf("expected token to stay server side, got %+v", resp)
	}
}

func TestPasswordResetValidate(t *testing.T) {
	resets := &memoryResetStore{tokens: []models.PasswordResetToken{
		{ID: "r1", UserID: memberID, Token: "good", ExpiresAt: fixedNow.Add(time.Hour)},
		{ID: "r2", UserID: memberID, Token: "expired", ExpiresAt: fixedNow.Add(-time.Minute)},
		{ID: "r3", UserID: memberID, Token: "used", ExpiresAt: fixedNow.Add(time.Hour), IsUsed: true},
	}}
	handler := newResetHandler(resets, nil)

	tests := []struct {
		token string
		valid bool
	}{
		{token: "good", valid: true},
		{token: "expired"},
		{token: "used"},
		{token: "missing"},
		{token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Validate(rec, newRequest(t, http.MethodGet, "/api/v1/password-reset/validate?token="+tt.token, "", nil))
			assertStatus(t, rec, http.StatusOK)
			resp := decodeBody[validateResponse](t, rec)
			if resp.Valid != tt.valid {
				t.Fatalf("expected valid=%v got %+v", tt.valid, resp)
			}
			if tt.valid && resp.Email != memberEmail {
				t.Fatalf("expected email %q got %q", memberEmail, resp.Email)
			}
		})
	}
}

func TestPasswordResetConfirmIsSingleUse(t *testing.T) {
	resets := &memoryResetStore{tokens: []models.PasswordResetToken{
		{ID: "r1", UserID: memberID, Token: "good", ExpiresAt: fixedNow.Add(time.Hour)},
	}}
	sessions := &recordingSessions{}
	handler := newResetHandler(resets, sessions)
	body := map[string]string{"token": "good", "newPassword": "new-password"}

	rec := httptest.NewRecorder()
	handler.Confirm(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/confirm", "", body))
	assertStatus(t, rec, http.StatusOK)

	if err := bcrypt.CompareHashAndPassword([]byte(resets.passwords[memberID]), []byte("new-password")); err != nil {
		t.Fatalf("expected new password hash to be stored: %v", err)
	}
	if len(sessions.revokedFor) != 1 || sessions.revokedFor[0] != memberID {
		t.Fatalf("expected sessions to be revoked, got %v", sessions.revokedFor)
	}

	rec = httptest.NewRecorder()
	handler.Confirm(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/confirm", "", body))
	assertError(t, rec, http.StatusBadRequest, resetInvalidMessage)
}

func TestPasswordResetConfirmRejectsShortPassword(t *testing.T) {
	handler := newResetHandler(&memoryResetStore{}, nil)

	rec := httptest.NewRecorder()
	handler.Confirm(rec, newRequest(t, http.MethodPost, "/api/v1/password-reset/confirm", "", map[string]string{"token": "good", "newPassword": "short"}))
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestPasswordResetTokensRequiresUser(t *testing.T) {
	resets := &memoryResetStore{tokens: []models.PasswordResetToken{
		{ID: "r1", UserID: memberID, Token: "good", ExpiresAt: fixedNow.Add(time.Hour)},
		{ID: "r2", UserID: "someone-else", Token: "other", ExpiresAt: fixedNow.Add(time.Hour)},
	}}
	handler := newResetHandler(resets, nil)

	rec := httptest.NewRecorder()
	handler.Tokens(rec, newRequest(t, http.MethodGet, "/api/v1/password-reset/tokens", "", nil))
	assertError(t, rec, http.StatusUnauthorized, "Not authenticated")

	rec = httptest.NewRecorder()
	handler.Tokens(rec, newRequest(t, http.MethodGet, "/api/v1/password-reset/tokens", memberID, nil))
	assertStatus(t, rec, http.StatusOK)
	tokens := decodeBody[[]models.PasswordResetToken](t, rec)
	if len(tokens) != 1 || tokens[0].Token != "good" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
}
