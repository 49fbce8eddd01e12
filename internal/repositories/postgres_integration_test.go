package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartwise/backend/internal/auth"
	"github.com/heartwise/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "alice@example.com")

	dup := models.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Password:  "another-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.Password != user.Password {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	byID, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != user.Email {
		t.Fatalf("unexpected user fetched by id: %+v", byID)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, NewPostgresUserRepository(testPool), "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires,
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires, time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func TestPostgresSessionStore_PurgeExpiredAndDeleteForUser(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, NewPostgresUserRepository(testPool), "sessions@example.com")
	store := NewPostgresSessionStore(testPool)
	now := time.Now().UTC()

	expired := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(-time.Hour)}
	live := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(time.Hour)}
	for _, s := range []auth.Session{expired, live} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	removed, err := store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged session, got %d", removed)
	}

	if err := store.DeleteForUser(ctx, user.ID); err != nil {
		t.Fatalf("delete for user: %v", err)
	}
	if _, err := store.Find(ctx, live.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected live session revoked, got %v", err)
	}
}

func TestPostgresPostRepository_ReactionsToggle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	author := createTestUser(t, users, "author@example.com")
	reader := createTestUser(t, users, "reader@example.com")
	posts := NewPostgresPostRepository(testPool)
	post := createTestPost(t, posts, author.ID, nil)

	result, err := posts.ToggleReaction(ctx, post.ID, reader.ID, models.ReactionLike)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if result.Likes != 1 || result.Dislikes != 0 || result.UserReaction == nil || *result.UserReaction != models.ReactionLike {
		t.Fatalf("unexpected result after like: %+v", result)
	}

	result, err = posts.ToggleReaction(ctx, post.ID, reader.ID, models.ReactionDislike)
	if err != nil {
		t.Fatalf("switch to dislike: %v", err)
	}
	if result.Likes != 0 || result.Dislikes != 1 {
		t.Fatalf("unexpected result after switch: %+v", result)
	}

	result, err = posts.ToggleReaction(ctx, post.ID, reader.ID, models.ReactionDislike)
	if err != nil {
		t.Fatalf("remove dislike: %v", err)
	}
	if result.Likes != 0 || result.Dislikes != 0 || result.UserReaction != nil {
		t.Fatalf("unexpected result after removal: %+v", result)
	}

	if _, err := posts.ToggleReaction(ctx, uuid.NewString(), reader.ID, models.ReactionLike); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown post, got %v", err)
	}
}

func TestPostgresPostRepository_DeleteRemovesChildren(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	author := createTestUser(t, users, "author@example.com")
	posts := NewPostgresPostRepository(testPool)

	key := "images/" + author.ID + "/photo"
	post := createTestPost(t, posts, author.ID, &key)

	if _, err := posts.ToggleReaction(ctx, post.ID, author.ID, models.ReactionLike); err != nil {
		t.Fatalf("react: %v", err)
	}
	comment := models.Comment{
		ID:        uuid.NewString(),
		PostID:    post.ID,
		UserID:    author.ID,
		Content:   "Amen",
		CreatedAt: time.Now().UTC(),
	}
	if err := posts.AddComment(ctx, comment); err != nil {
		t.Fatalf("comment: %v", err)
	}

	feed, err := posts.List(ctx, "all", author.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(feed) != 1 || feed[0].CommentCount != 1 || feed[0].UserReaction == nil {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	imageKey, err := posts.Delete(ctx, post.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if imageKey == nil || *imageKey != key {
		t.Fatalf("expected image key %q, got %v", key, imageKey)
	}

	comments, err := posts.ListComments(ctx, post.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("expected comments removed, got %d", len(comments))
	}
	if _, err := posts.Delete(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresPasswordResetRepository_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	user := createTestUser(t, users, "reset@example.com")
	resets := NewPostgresPasswordResetRepository(testPool)

	now := time.Now().UTC()
	token := models.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := resets.Create(ctx, token); err != nil {
		t.Fatalf("create token: %v", err)
	}

	active, err := resets.FindActiveForUser(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active.Token != token.Token {
		t.Fatalf("unexpected active token: %+v", active)
	}

	userID, err := resets.Consume(ctx, token.Token, "new-hash", now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, userID)
	}

	updated, err := users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if updated.Password != "new-hash" {
		t.Fatalf("expected password hash updated, got %q", updated.Password)
	}

	if _, err := resets.Consume(ctx, token.Token, "again", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound consuming twice, got %v", err)
	}
	if _, err := resets.FindActiveForUser(ctx, user.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active token after consume, got %v", err)
	}
}

func TestPostgresTestimonyRepository_Moderation(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, NewPostgresUserRepository(testPool), "story@example.com")
	repo := NewPostgresTestimonyRepository(testPool)

	testimony := models.Testimony{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Title:     "Answered prayer",
		Story:     "We met at church.",
		Category:  models.TestimonyCategoryMarriage,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, testimony); err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := repo.ListApproved(ctx, "", 10)
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approved) != 0 {
		t.Fatalf("expected pending testimony hidden, got %d", len(approved))
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 || stats.Approved != 0 {
		t.Fatalf("unexpected stats before approval: %+v", stats)
	}

	if err := repo.Approve(ctx, testimony.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, err = repo.ListApproved(ctx, models.TestimonyCategoryMarriage, 10)
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approved) != 1 || approved[0].Author.Email != user.Email {
		t.Fatalf("unexpected approved testimonies: %+v", approved)
	}

	if err := repo.Delete(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rejecting unknown testimony, got %v", err)
	}
}

func TestPostgresRoomRepository_SeedOnce(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresRoomRepository(testPool)
	rooms := []models.ChatRoom{
		{ID: uuid.NewString(), Name: "General", Description: "Open chat", CreatedAt: time.Now().UTC()},
		{ID: uuid.NewString(), Name: "Prayer", Description: "Prayer requests", CreatedAt: time.Now().UTC()},
	}

	created, err := repo.SeedDefaults(ctx, rooms)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 rooms created, got %d", created)
	}

	created, err = repo.SeedDefaults(ctx, rooms)
	if err != nil {
		t.Fatalf("seed again: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected reseed to be a no-op, got %d", created)
	}

	if err := repo.Deactivate(ctx, rooms[0].ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != rooms[1].ID {
		t.Fatalf("unexpected active rooms: %+v", active)
	}
}

func TestPostgresCallRepository_JoinLimits(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	host := createTestUser(t, users, "host@example.com")
	guest := createTestUser(t, users, "guest@example.com")
	late := createTestUser(t, users, "late@example.com")

	rooms := NewPostgresRoomRepository(testPool)
	room := models.ChatRoom{ID: uuid.NewString(), Name: "General", IsActive: true, CreatedAt: time.Now().UTC()}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	calls := NewPostgresCallRepository(testPool)
	call := models.VideoCall{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		HostUserID:      host.ID,
		Title:           "Evening prayer",
		MeetingURL:      "https://meet.jit.si/HeartWise-test",
		IsActive:        true,
		MaxParticipants: 2,
		CreatedAt:       time.Now().UTC(),
	}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	now := time.Now().UTC()
	for _, userID := range []string{host.ID, guest.ID} {
		result, err := calls.Join(ctx, call.ID, userID, uuid.NewString(), now)
		if err != nil {
			t.Fatalf("join %s: %v", userID, err)
		}
		if result.AlreadyJoined || result.MeetingURL != call.MeetingURL {
			t.Fatalf("unexpected join result: %+v", result)
		}
	}

	again, err := calls.Join(ctx, call.ID, guest.ID, uuid.NewString(), now)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !again.AlreadyJoined {
		t.Fatal("expected rejoin to report AlreadyJoined")
	}

	if _, err := calls.Join(ctx, call.ID, late.ID, uuid.NewString(), now); !errors.Is(err, ErrCallFull) {
		t.Fatalf("expected ErrCallFull, got %v", err)
	}

	if err := calls.Leave(ctx, call.ID, guest.ID, now); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := calls.Leave(ctx, call.ID, guest.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound leaving twice, got %v", err)
	}

	participants, err := calls.Participants(ctx, call.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 1 || participants[0].UserID != host.ID {
		t.Fatalf("unexpected participants: %+v", participants)
	}

	if err := calls.End(ctx, call.ID, now); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := calls.Join(ctx, call.ID, late.ID, uuid.NewString(), now); !errors.Is(err, ErrCallInactive) {
		t.Fatalf("expected ErrCallInactive after end, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE call_participants, video_calls, chat_messages, chat_rooms, daily_verses, admin_notifications, testimonies, reactions, comments, posts, messages, conversations, password_reset_tokens, profiles, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestPost(t *testing.T, repo *PostgresPostRepository, userID string, imageKey *string) models.Post {
	t.Helper()
	post := models.Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     "Waiting well",
		Content:   "How do you stay patient?",
		Category:  models.PostCategoryQuestion,
		ImageKey:  imageKey,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), post); err != nil {
		t.Fatalf("create test post: %v", err)
	}
	return post
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
