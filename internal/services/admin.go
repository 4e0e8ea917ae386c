package services

import (
	"net/http"
	"strings"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/moderation"
	apperrors "workplacemapping/pkg/errors"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
)

type statusPayload struct {
	Status string `json:"status"`
}

// AdminService serves the moderator comment queue
type AdminService struct {
	comments CommentModerator
	auth     *Authenticator
	vars     func(*http.Request) map[string]string
	log      *logrus.Entry
}

func NewAdminService(comments CommentModerator, auth *Authenticator) *AdminService {
	return &AdminService{comments: comments, auth: auth, log: logging.For("admin")}
}

func (s *AdminService) Mount(mux goahttp.Muxer) {
	s.vars = mux.Vars
	mux.Handle(http.MethodGet, "/api/v1/admin/comments", s.auth.RequireStaff(s.handleQueue))
	mux.Handle(http.MethodPost, "/api/v1/admin/comments/{id}/status", s.auth.RequireStaff(s.handleTransition))
	mux.Handle(http.MethodDelete, "/api/v1/admin/comments/{id}", s.auth.RequireStaff(s.handleDelete))
}

// handleQueue accepts status=all or one of the four statuses, and narrows
// by parentId or topLevel=true.
func (s *AdminService) handleQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f := domain.CommentFilter{
		PostID:       strings.TrimSpace(query.Get("postId")),
		TopLevelOnly: query.Get("topLevel") == "true",
	}
	if parent := strings.TrimSpace(query.Get("parentId")); parent != "" {
		f.ParentID = &parent
	}
	f.Offset, f.Limit = pageParams(r, moderation.DefaultQueueLimit, moderation.MaxQueueLimit)

	if raw := strings.TrimSpace(query.Get("status")); raw != "" && raw != "all" {
		status, err := domain.ParseCommentStatus(raw)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		f.Status = status
	}

	q, err := s.comments.ModerationQueue(r.Context(), f)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, q)
}

func (s *AdminService) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := s.vars(r)["id"]

	var p statusPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	to, err := domain.ParseCommentStatus(strings.TrimSpace(p.Status))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res, err := s.comments.Transition(r.Context(), id, to)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	entry := s.log.WithFields(logrus.Fields{"comment_id": id, "to": to, "changed": res.Changed})
	if user, ok := UserFromContext(r.Context()); ok {
		entry = entry.WithField("moderator", user.Username)
	}
	entry.Info("moderation action")

	writeJSON(r.Context(), w, http.StatusOK, res)
}

func (s *AdminService) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := s.vars(r)["id"]
	if id == "" {
		writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeBadRequest, "comment id required"))
		return
	}

	if err := s.comments.Delete(r.Context(), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
