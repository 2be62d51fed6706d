// internal/handlers/submission_handler.go
package handlers

import (
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SubmissionHandler struct {
	service service.SubmissionService
	logger  *slog.Logger
}

func NewSubmissionHandler(s service.SubmissionService, logger *slog.Logger) *SubmissionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionHandler{
		service: s,
		logger:  logger,
	}
}

// Submit は提出を記録して検証を実行するハンドラ。
// 空の content も受け付けて不合格扱いにするため、ここでは required にしない。
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "Submit"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	var req model.SubmitRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	result, err := h.service.Submit(r.Context(), taskID, learnerID, &req)
	if err != nil {
		logger.Error("Error submitting in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Submission recorded",
		slog.String("submission_id", result.SubmissionID.String()),
		slog.Int("attempt_number", result.AttemptNumber),
		slog.Bool("passed", result.Passed),
	)
	webutil.RespondWithJSON(w, http.StatusCreated, result, logger)
}

// ListSubmissions は自分の提出履歴を試行順で返すハンドラ
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "ListSubmissions"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	submissions, err := h.service.ListSubmissions(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error listing submissions in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if submissions == nil {
		submissions = []*model.Submission{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, submissions, logger)
}

// Revalidate は既存の提出を手動で再検証するハンドラ
func (h *SubmissionHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "Revalidate"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	submissionID, err := uuid.Parse(chi.URLParam(r, "submission_id"))
	if err != nil {
		appErr := model.NewAppError("INVALID_INPUT", "submission_id の形式が正しくありません。", "submission_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("submission_id", submissionID.String()))

	result, err := h.service.Revalidate(r.Context(), submissionID, learnerID)
	if err != nil {
		logger.Error("Error revalidating submission in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, result, logger)
}
