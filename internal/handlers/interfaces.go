package handlers

import (
	"context"
	"io"
	"time"

	"github.com/heartwise/backend/internal/counsel"
	"github.com/heartwise/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// UserLookup resolves a user by id.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// AdminPolicy decides which accounts may moderate.
type AdminPolicy interface {
	IsAdmin(email string) bool
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	RevokeAll(ctx context.Context, userID string) error
}

// PasswordResetStore persists single-use reset tokens.
type PasswordResetStore interface {
	Create(ctx context.Context, token models.PasswordResetToken) error
	FindActiveForUser(ctx context.Context, userID string, now time.Time) (models.PasswordResetToken, error)
	FindByToken(ctx context.Context, token string) (models.PasswordResetToken, error)
	ListUnusedForUser(ctx context.Context, userID string) ([]models.PasswordResetToken, error)
	Consume(ctx context.Context, token, passwordHash string, now time.Time) (string, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID string) (models.Profile, error)
	Upsert(ctx context.Context, profile models.Profile) (string, error)
}

// ConversationStore persists AI counseling threads.
type ConversationStore interface {
	ListActive(ctx context.Context, userID string) ([]models.Conversation, error)
	Create(ctx context.Context, conversation models.Conversation) error
	Find(ctx context.Context, id string) (models.Conversation, error)
	Rename(ctx context.Context, id, title string) error
	Deactivate(ctx context.Context, id string) error
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	AddMessage(ctx context.Context, message models.Message) error
}

// ReplyDispatcher schedules AI replies.
type ReplyDispatcher interface {
	Dispatch(ctx context.Context, job counsel.Job) error
}

// NotificationStore persists the moderator inbox.
type NotificationStore interface {
	Create(ctx context.Context, notification models.AdminNotification) error
	List(ctx context.Context, limit int) ([]models.AdminNotification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
}

// PostStore persists the community feed.
type PostStore interface {
	List(ctx context.Context, category, viewerID string, limit int) ([]models.PostDetails, error)
	ListAll(ctx context.Context) ([]models.PostDetails, error)
	Create(ctx context.Context, post models.Post) error
	Find(ctx context.Context, id string) (models.Post, error)
	ToggleReaction(ctx context.Context, postID, userID, reaction string) (models.ReactionResult, error)
	ListComments(ctx context.Context, postID string) ([]models.CommentDetails, error)
	AddComment(ctx context.Context, comment models.Comment) error
	Delete(ctx context.Context, id string) (*string, error)
}

// TestimonyStore persists moderated testimonies.
type TestimonyStore interface {
	ListApproved(ctx context.Context, category string, limit int) ([]models.TestimonyDetails, error)
	ListPending(ctx context.Context) ([]models.TestimonyDetails, error)
	Create(ctx context.Context, testimony models.Testimony) error
	Approve(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (models.TestimonyStats, error)
}

// RoomStore persists live chat rooms and their messages.
type RoomStore interface {
	ListActive(ctx context.Context) ([]models.ChatRoom, error)
	Find(ctx context.Context, id string) (models.ChatRoom, error)
	Create(ctx context.Context, room models.ChatRoom) error
	Deactivate(ctx context.Context, id string) error
	SeedDefaults(ctx context.Context, rooms []models.ChatRoom) (int, error)
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessageDetails, error)
	AddMessage(ctx context.Context, message models.ChatMessage) error
}

// CallStore persists video calls and their participants.
type CallStore interface {
	ListActive(ctx context.Context, roomID string) ([]models.VideoCallDetails, error)
	Find(ctx context.Context, id string) (models.VideoCall, error)
	Create(ctx context.Context, call models.VideoCall) error
	Join(ctx context.Context, callID, userID, participantID string, now time.Time) (models.JoinResult, error)
	Leave(ctx context.Context, callID, userID string, now time.Time) error
	End(ctx context.Context, callID string, now time.Time) error
	Participants(ctx context.Context, callID string) ([]models.ParticipantDetails, error)
}

// VerseService generates and serves the verse of the day.
type VerseService interface {
	Today(ctx context.Context) (*models.DailyVerse, error)
	Current(ctx context.Context) (*models.DailyVerse, error)
	GenerateCurrent(ctx context.Context) (models.DailyVerse, error)
	GenerateNew(ctx context.Context, topic string) (models.DailyVerse, error)
}

// StatsStore aggregates dashboard counters.
type StatsStore interface {
	AdminStats(ctx context.Context, since time.Time) (models.AdminStats, error)
}

// ObjectStore issues upload URLs and removes stored images.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ImageResolver turns stored object keys into loadable URLs.
type ImageResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
	Forget(key string)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
