// internal/handlers/summary_handler.go
package handlers

import (
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
)

type SummaryHandler struct {
	service service.SummaryService
	logger  *slog.Logger
}

func NewSummaryHandler(s service.SummaryService, logger *slog.Logger) *SummaryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryHandler{
		service: s,
		logger:  logger,
	}
}

// Summarize は完了タスクの振り返りを新しい版として生成するハンドラ
func (h *SummaryHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "Summarize"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	summary, err := h.service.Summarize(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error summarizing task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Summary created", slog.Int("version", summary.Version))
	webutil.RespondWithJSON(w, http.StatusCreated, summary, logger)
}

// ListSummaries はタスクのサマリ版履歴を返すハンドラ
func (h *SummaryHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "ListSummaries"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	summaries, err := h.service.ListSummaries(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error listing summaries in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if summaries == nil {
		summaries = []*model.StatusSummary{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, summaries, logger)
}
