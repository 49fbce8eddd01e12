package models

import "time"

// User represents an account within the HeartWise community.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Profile carries the public-facing details of a user. Each user has at most one.
type Profile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Bio         *string   `json:"bio,omitempty"`
	Age         *int      `json:"age,omitempty"`
	Location    *string   `json:"location,omitempty"`
	ImageKey    *string   `json:"imageKey,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Author is the display identity resolved for a piece of user content.
type Author struct {
	UserID      string
	Email       string
	Name        string
	DisplayName string
	Bio         *string
	ImageKey    *string
}

// Label picks the best available name for the author, falling back to
// the supplied default when nothing is known.
func (a Author) Label(fallback string) string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return fallback
	}
}

// Conversation is a thread between a user and the AI counselor.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single turn inside a conversation.
type Message struct {
	ID                 string    `json:"id"`
	ConversationID     string    `json:"conversationId"`
	UserID             string    `json:"userId"`
	Content            string    `json:"content"`
	IsAI               bool      `json:"isAI"`
	BiblicalReferences []string  `json:"biblicalReferences,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Post categories.
const (
	PostCategoryAdvice        = "advice"
	PostCategoryTestimony     = "testimony"
	PostCategoryQuestion      = "question"
	PostCategoryEncouragement = "encouragement"
	PostCategoryAnnouncement  = "announcement"
)

// ValidPostCategory reports whether category is accepted for new posts.
func ValidPostCategory(category string) bool {
	switch category {
	case PostCategoryAdvice, PostCategoryTestimony, PostCategoryQuestion, PostCategoryEncouragement, PostCategoryAnnouncement:
		return true
	}
	return false
}

// Post is a community feed entry.
type Post struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	IsAnonymous bool      `json:"isAnonymous"`
	Likes       int       `json:"likes"`
	Dislikes    int       `json:"dislikes"`
	ImageKey    *string   `json:"imageKey,omitempty"`
	ImageURL    *string   `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PostDetails decorates a post with the data the feed renders alongside it.
type PostDetails struct {
	Post
	Author       Author
	UserReaction *string
	CommentCount int
}

// Comment is a reply on a post.
type Comment struct {
	ID          string    `json:"id"`
	PostID      string    `json:"postId"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content"`
	IsAnonymous bool      `json:"isAnonymous"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CommentDetails pairs a comment with its resolved author.
type CommentDetails struct {
	Comment
	Author Author
}

// Reaction kinds.
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// Reaction is a like or dislike left by one user on one post.
type Reaction struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionResult reports the counters of a post after a reaction toggle.
type ReactionResult struct {
	Likes        int     `json:"likes"`
	Dislikes     int     `json:"dislikes"`
	UserReaction *string `json:"userReaction"`
}

// Testimony categories.
const (
	TestimonyCategoryRelationship = "relationship"
	TestimonyCategoryMarriage     = "marriage"
	TestimonyCategoryHealing      = "healing"
	TestimonyCategoryGuidance     = "guidance"
)

// ValidTestimonyCategory reports whether category is accepted for testimonies.
func ValidTestimonyCategory(category string) bool {
	switch category {
	case TestimonyCategoryRelationship, TestimonyCategoryMarriage, TestimonyCategoryHealing, TestimonyCategoryGuidance:
		return true
	}
	return false
}

// Testimony is a user story that stays hidden until a moderator approves it.
type Testimony struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Story       string    `json:"story"`
	Category    string    `json:"category"`
	IsAnonymous bool      `json:"isAnonymous"`
	IsApproved  bool      `json:"isApproved"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TestimonyDetails pairs a testimony with its resolved author.
type TestimonyDetails struct {
	Testimony
	Author Author
}

// TestimonyStats summarises the moderation queue.
type TestimonyStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
}

// ChatRoom is a public live chat channel.
type ChatRoom struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChatMessage is a message posted to a chat room.
type ChatMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content"`
	IsAnonymous bool      `json:"isAnonymous"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChatMessageDetails pairs a chat message with its resolved author.
type ChatMessageDetails struct {
	ChatMessage
	Author Author
}

// VideoCall is a scheduled or live group call attached to a chat room.
type VideoCall struct {
	ID                  string     `json:"id"`
	RoomID              string     `json:"roomId"`
	HostUserID          string     `json:"hostUserId"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	MeetingURL          string     `json:"meetingUrl"`
	ScheduledTime       *time.Time `json:"scheduledTime,omitempty"`
	IsActive            bool       `json:"isActive"`
	MaxParticipants     int        `json:"maxParticipants"`
	CurrentParticipants int        `json:"currentParticipants"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// VideoCallDetails pairs a call with its host identity.
type VideoCallDetails struct {
	VideoCall
	Host Author
}

// Participant records one user's presence in a video call.
type Participant struct {
	ID       string     `json:"id"`
	CallID   string     `json:"callId"`
	UserID   string     `json:"userId"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
	IsActive bool       `json:"isActive"`
}

// ParticipantDetails pairs a participant with its identity.
type ParticipantDetails struct {
	Participant
	Author Author
}

// JoinResult reports the outcome of joining a call.
type JoinResult struct {
	MeetingURL    string `json:"meetingUrl"`
	AlreadyJoined bool   `json:"alreadyJoined"`
}

// PasswordResetToken is a single-use credential for resetting a password.
type PasswordResetToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsUsed    bool      `json:"isUsed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Usable reports whether the token can still be redeemed at now.
func (t PasswordResetToken) Usable(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

// Admin notification types and priorities.
const (
	NotificationNewMessage     = "new_message"
	NotificationNewPost        = "new_post"
	NotificationNewTestimony   = "new_testimony"
	NotificationFlaggedContent = "flagged_content"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// AdminNotification is an entry in the moderator inbox.
type AdminNotification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RelatedID   *string   `json:"relatedId,omitempty"`
	IsRead      bool      `json:"isRead"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DailyVerse is a scripture passage with a short reflection.
type DailyVerse struct {
	ID            string    `json:"id"`
	Verse         string    `json:"verse"`
	Reference     string    `json:"reference"`
	Reflection    string    `json:"reflection"`
	Topic         string    `json:"topic"`
	Date          string    `json:"date"`
	MinuteKey     string    `json:"minuteKey"`
	IsAIGenerated bool      `json:"isAIGenerated"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AdminStats aggregates community counters for the dashboard.
type AdminStats struct {
	TotalUsers          int `json:"totalUsers"`
	TotalPosts          int `json:"totalPosts"`
	TotalComments       int `json:"totalComments"`
	TotalReactions      int `json:"totalReactions"`
	TotalMessages       int `json:"totalMessages"`
	TotalConversations  int `json:"totalConversations"`
	RecentPosts         int `json:"recentPosts"`
	RecentComments      int `json:"recentComments"`
	UnreadNotifications int `json:"unreadNotifications"`
}
