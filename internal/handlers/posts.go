package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
	"github.com/heartwise/backend/internal/storage"
)

const feedLimit = 20

// PostHandler serves the community feed.
type PostHandler struct {
	Guard
	Posts         PostStore
	Notifications NotificationStore
	Images        ImageResolver
	Objects       ObjectStore
	NowFunc       func() time.Time
}

type postView struct {
	models.Post
	AuthorName   string  `json:"authorName"`
	AuthorBio    *string `json:"authorBio"`
	AuthorImage  string  `json:"authorImage,omitempty"`
	UserReaction *string `json:"userReaction"`
	CommentCount int     `json:"commentCount"`
}

type commentView struct {
	models.Comment
	AuthorName string `json:"authorName"`
}

// List handles GET /api/v1/posts?category=.
func (h PostHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "all" {
		category = ""
	}
	if category != "" && !models.ValidPostCategory(category) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid category")
		return
	}

	posts, err := h.Posts.List(ctx, category, logging.UserIDFromContext(ctx), feedLimit)
	if err != nil {
		logging.FromContext(ctx).Error("list posts", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load posts")
		return
	}

	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, h.view(ctx, p))
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

// Create handles POST /api/v1/posts.
func (h PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Title       string  `json:"title"`
		Content     string  `json:"content"`
		Category    string  `json:"category"`
		IsAnonymous bool    `json:"isAnonymous"`
		ImageKey    *string `json:"imageKey"`
		ImageURL    *string `json:"imageUrl"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid post payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	if title == "" || content == "" {
		respondError(ctx, w, http.StatusBadRequest, "Title and content are required")
		return
	}
	if !models.ValidPostCategory(req.Category) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid category")
		return
	}
	imageKey := optionalString(req.ImageKey)
	if imageKey != nil && !storage.OwnsKey(userID, *imageKey) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid image key")
		return
	}
	imageURL := optionalString(req.ImageURL)
	if imageURL != nil && !isHTTPURL(*imageURL) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid image URL")
		return
	}

	now := h.now()
	post := models.Post{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Content:     content,
		Category:    req.Category,
		IsAnonymous: req.IsAnonymous,
		ImageKey:    imageKey,
		ImageURL:    imageURL,
		CreatedAt:   now,
	}
	if err := h.Posts.Create(ctx, post); err != nil {
		logger.Error("create post", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create post")
		return
	}

	notify(ctx, h.Notifications, models.AdminNotification{
		ID:          uuid.NewString(),
		Type:        models.NotificationNewPost,
		Title:       "New Community Post",
		Description: `New post: "` + truncate(title, 50) + `"`,
		RelatedID:   stringPtr(post.ID),
		Priority:    models.PriorityLow,
		CreatedAt:   now,
	})

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": post.ID})
}

// React handles POST /api/v1/posts/{id}/reactions.
func (h PostHandler) React(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.ValidReaction(req.Reaction) {
		respondError(ctx, w, http.StatusBadRequest, "Reaction must be like or dislike")
		return
	}

	result, err := h.Posts.ToggleReaction(ctx, r.PathValue("id"), userID, req.Reaction)
	if err != nil {
		h.writeFailure(w, r, "toggle reaction", err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Comments handles GET /api/v1/posts/{id}/comments.
func (h PostHandler) Comments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	comments, err := h.Posts.ListComments(ctx, r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, "list comments", err)
		return
	}

	views := make([]commentView, 0, len(comments))
	for _, c := range comments {
		v := commentView{Comment: c.Comment, AuthorName: "Anonymous"}
		if c.IsAnonymous {
			v.UserID = ""
		} else {
			v.AuthorName = firstNonEmpty(c.Author.DisplayName, c.Author.Name, "Unknown")
		}
		views = append(views, v)
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

// Comment handles POST /api/v1/posts/{id}/comments.
func (h PostHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Content     string `json:"content"`
		IsAnonymous bool   `json:"isAnonymous"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(ctx, w, http.StatusBadRequest, "Comment cannot be empty")
		return
	}

	postID := r.PathValue("id")
	if _, err := h.Posts.Find(ctx, postID); err != nil {
		h.writeFailure(w, r, "load post", err)
		return
	}

	comment := models.Comment{
		ID:          uuid.NewString(),
		PostID:      postID,
		UserID:      userID,
		Content:     content,
		IsAnonymous: req.IsAnonymous,
		CreatedAt:   h.now(),
	}
	if err := h.Posts.AddComment(ctx, comment); err != nil {
		h.writeFailure(w, r, "add comment", err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": comment.ID})
}

// Delete handles DELETE /api/v1/posts/{id}. Comments and reactions go with
// the post; the stored image is removed afterwards on a best-effort basis.
func (h PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	postID := r.PathValue("id")
	imageKey, err := h.Posts.Delete(ctx, postID)
	if err != nil {
		h.writeFailure(w, r, "delete post", err)
		return
	}

	if imageKey != nil && *imageKey != "" {
		if h.Images != nil {
			h.Images.Forget(*imageKey)
		}
		if h.Objects != nil {
			if err := h.Objects.Delete(ctx, *imageKey); err != nil {
				logging.FromContext(ctx).Warn("remove post image", "error", err, "postId", postID, "key", *imageKey)
			}
		}
	}

	logging.FromContext(ctx).Info("post deleted", "postId", postID)
	w.WriteHeader(http.StatusNoContent)
}

func (h PostHandler) view(ctx context.Context, p models.PostDetails) postView {
	v := postView{
		Post:         p.Post,
		AuthorName:   "Anonymous",
		UserReaction: p.UserReaction,
		CommentCount: p.CommentCount,
	}
	if p.IsAnonymous {
		v.UserID = ""
	} else {
		v.AuthorName = p.Author.Label("Unknown")
		v.AuthorBio = p.Author.Bio
		v.AuthorImage = authorImage(ctx, h.Images, p.Author)
	}
	if p.ImageKey != nil {
		if u := resolveImage(ctx, h.Images, *p.ImageKey); u != "" {
			v.ImageURL = &u
		}
	}
	return v
}

func (h PostHandler) writeFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "Post not found")
		return
	}
	logging.FromContext(ctx).Error(action, "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "unable to process post request")
}

func (h PostHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
