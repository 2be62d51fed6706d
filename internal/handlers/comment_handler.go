// internal/handlers/comment_handler.go
package handlers

import (
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
)

type CommentHandler struct {
	service service.CommentService
	logger  *slog.Logger
}

func NewCommentHandler(s service.CommentService, logger *slog.Logger) *CommentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentHandler{
		service: s,
		logger:  logger,
	}
}

// PostComment はコメントを投稿するハンドラ
func (h *CommentHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostComment"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	var req model.PostCommentRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	comment, err := h.service.PostComment(r.Context(), taskID, learnerID, &req)
	if err != nil {
		logger.Error("Error posting comment in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Comment posted successfully", slog.String("comment_id", comment.CommentID.String()))
	webutil.RespondWithJSON(w, http.StatusCreated, comment, logger)
}

// ListComments は共有コメントと自分のプライベートコメントを返すハンドラ
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "ListComments"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	comments, err := h.service.ListComments(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error listing comments in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if comments == nil {
		comments = []*model.CommentResponse{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, comments, logger)
}
