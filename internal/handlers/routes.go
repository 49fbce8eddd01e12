package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartwise/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Verifier      middleware.TokenVerifier
	Admins        AdminPolicy
	Limiter       middleware.RateLimiter
	Resets        PasswordResetStore
	Profiles      ProfileStore
	Conversations ConversationStore
	Replies       ReplyDispatcher
	Notifications NotificationStore
	Posts         PostStore
	Testimonies   TestimonyStore
	Rooms         RoomStore
	Calls         CallStore
	Verses        VerseService
	Stats         StatsStore
	Objects       ObjectStore
	Images        ImageResolver
	DB            Pinger

	PasswordResetTTL time.Duration
	FrontendURL      string
	ExposeTokens     bool
	UploadURLTTL     time.Duration
	MeetingBaseURL   string
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux. Every API
// route passes through the Authenticate middleware so handlers can read the
// caller from the request context.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	guard := Guard{Users: deps.Users, Admins: deps.Admins}
	health := HealthHandler{DB: deps.DB}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Admins: deps.Admins}
	resets := PasswordResetHandler{
		Users:        deps.Users,
		Resets:       deps.Resets,
		Sessions:     deps.Sessions,
		TokenTTL:     deps.PasswordResetTTL,
		FrontendURL:  deps.FrontendURL,
		ExposeTokens: deps.ExposeTokens,
	}
	profiles := ProfileHandler{Guard: guard, Profiles: deps.Profiles, Images: deps.Images}
	conversations := ConversationHandler{
		Guard:         guard,
		Conversations: deps.Conversations,
		Notifications: deps.Notifications,
		Replies:       deps.Replies,
	}
	posts := PostHandler{
		Guard:         guard,
		Posts:         deps.Posts,
		Notifications: deps.Notifications,
		Images:        deps.Images,
		Objects:       deps.Objects,
	}
	testimonies := TestimonyHandler{Guard: guard, Testimonies: deps.Testimonies, Notifications: deps.Notifications}
	rooms := RoomHandler{Guard: guard, Rooms: deps.Rooms, Images: deps.Images}
	calls := CallHandler{Guard: guard, Calls: deps.Calls, Rooms: deps.Rooms, MeetingBaseURL: deps.MeetingBaseURL, Images: deps.Images}
	verses := VerseHandler{Verses: deps.Verses}
	uploads := UploadHandler{Guard: guard, Store: deps.Objects, Images: deps.Images, TTL: deps.UploadURLTTL}
	admin := AdminHandler{Guard: guard, Stats: deps.Stats, Notifications: deps.Notifications, Posts: deps.Posts}

	authenticate := middleware.Authenticate(deps.Verifier)
	handle := func(pattern string, h http.HandlerFunc, wrappers ...func(http.Handler) http.Handler) {
		var next http.Handler = h
		for _, wrap := range wrappers {
			next = wrap(next)
		}
		mux.Handle(pattern, authenticate(next))
	}
	limited := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(deps.Limiter, scope)
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	handle("POST /api/v1/auth/signup", auth.SignUp, limited("signup"))
	handle("POST /api/v1/auth/login", auth.Login, limited("login"))
	handle("POST /api/v1/auth/refresh", auth.Refresh)
	handle("POST /api/v1/auth/logout", auth.Logout)
	handle("GET /api/v1/auth/me", auth.Me)

	handle("POST /api/v1/password-reset/request", resets.Request, limited("password-reset"))
	handle("GET /api/v1/password-reset/validate", resets.Validate)
	handle("POST /api/v1/password-reset/confirm", resets.Confirm, limited("password-reset"))
	handle("GET /api/v1/password-reset/tokens", resets.Tokens)

	handle("GET /api/v1/profiles/me", profiles.Mine)
	handle("PUT /api/v1/profiles/me", profiles.Save)
	handle("GET /api/v1/profiles/{userId}", profiles.Show)

	handle("GET /api/v1/conversations", conversations.List)
	handle("POST /api/v1/conversations", conversations.Create)
	handle("GET /api/v1/conversations/{id}/messages", conversations.Messages)
	handle("POST /api/v1/conversations/{id}/messages", conversations.Send)
	handle("PATCH /api/v1/conversations/{id}", conversations.Rename)
	handle("DELETE /api/v1/conversations/{id}", conversations.Delete)

	handle("GET /api/v1/posts", posts.List)
	handle("POST /api/v1/posts", posts.Create)
	handle("POST /api/v1/posts/{id}/reactions", posts.React)
	handle("GET /api/v1/posts/{id}/comments", posts.Comments)
	handle("POST /api/v1/posts/{id}/comments", posts.Comment)
	handle("DELETE /api/v1/posts/{id}", posts.Delete)

	handle("GET /api/v1/testimonies", testimonies.List)
	handle("POST /api/v1/testimonies", testimonies.Create)
	handle("GET /api/v1/admin/testimonies/pending", testimonies.Pending)
	handle("GET /api/v1/admin/testimonies/stats", testimonies.Stats)
	handle("POST /api/v1/admin/testimonies/{id}/approve", testimonies.Approve)
	handle("DELETE /api/v1/admin/testimonies/{id}", testimonies.Reject)

	handle("GET /api/v1/rooms", rooms.List)
	handle("POST /api/v1/rooms", rooms.Create)
	handle("POST /api/v1/rooms/seed", rooms.Seed)
	handle("DELETE /api/v1/rooms/{id}", rooms.Delete)
	handle("GET /api/v1/rooms/{id}/messages", rooms.Messages)
	handle("POST /api/v1/rooms/{id}/messages", rooms.Send)

	handle("GET /api/v1/calls", calls.List)
	handle("POST /api/v1/calls", calls.Create)
	handle("POST /api/v1/calls/{id}/join", calls.Join)
	handle("POST /api/v1/calls/{id}/leave", calls.Leave)
	handle("POST /api/v1/calls/{id}/end", calls.End)
	handle("GET /api/v1/calls/{id}/participants", calls.Participants)

	handle("GET /api/v1/verses/today", verses.Today)
	handle("GET /api/v1/verses/current", verses.Current)
	handle("POST /api/v1/verses/current", verses.GenerateCurrent)
	handle("POST /api/v1/verses", verses.GenerateNew)

	handle("POST /api/v1/uploads", uploads.Presign)
	handle("POST /api/v1/uploads/direct", uploads.Direct)

	handle("GET /api/v1/admin/stats", admin.DashboardStats)
	handle("GET /api/v1/admin/notifications", admin.ListNotifications)
	handle("POST /api/v1/admin/notifications/read-all", admin.MarkAllRead)
	handle("POST /api/v1/admin/notifications/{id}/read", admin.MarkRead)
	handle("GET /api/v1/admin/posts", admin.ListPosts)
}
