package services

import (
	"context"
	"net/http"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/moderation"

	goahttp "goa.design/goa/v3/http"
)

// CommentModerator is the comment workflow behind the HTTP surface.
type CommentModerator interface {
	Create(ctx context.Context, postRef string, in moderation.CommentInput) (*domain.Comment, error)
	Transition(ctx context.Context, id string, to domain.CommentStatus) (moderation.TransitionResult, error)
	PublicThreads(ctx context.Context, postRef string) ([]domain.Thread, error)
	ModerationQueue(ctx context.Context, f domain.CommentFilter) (moderation.Queue, error)
	Delete(ctx context.Context, id string) error
}

type threadList struct {
	PostID   string          `json:"postId"`
	Comments []domain.Thread `json:"comments"`
}

type createdComment struct {
	Comment domain.PublicComment `json:"comment"`
	Status  domain.CommentStatus `json:"status"`
	Message string               `json:"message"`
}

// CommentService serves the public comment endpoints
type CommentService struct {
	comments CommentModerator
	throttle *Throttle
	vars     func(*http.Request) map[string]string
}

func NewCommentService(comments CommentModerator, throttle *Throttle) *CommentService {
	return &CommentService{comments: comments, throttle: throttle}
}

func (s *CommentService) Mount(mux goahttp.Muxer) {
	s.vars = mux.Vars
	mux.Handle(http.MethodGet, "/api/v1/posts/{postID}/comments", s.handleList)
	mux.Handle(http.MethodPost, "/api/v1/posts/{postID}/comments", s.throttle.Wrap("comments", s.handleCreate))
}

func (s *CommentService) handleList(w http.ResponseWriter, r *http.Request) {
	postID := s.vars(r)["postID"]

	threads, err := s.comments.PublicThreads(r.Context(), postID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, threadList{PostID: postID, Comments: threads})
}

func (s *CommentService) handleCreate(w http.ResponseWriter, r *http.Request) {
	postID := s.vars(r)["postID"]

	var in moderation.CommentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	c, err := s.comments.Create(r.Context(), postID, in)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusCreated, createdComment{
		Comment: c.Public(),
		Status:  c.Status,
		Message: "Thank you! Your comment has been submitted and is awaiting moderation.",
	})
}
