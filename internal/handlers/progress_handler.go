// internal/handlers/progress_handler.go
package handlers

import (
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
)

type ProgressHandler struct {
	service service.ProgressService
	logger  *slog.Logger
}

func NewProgressHandler(s service.ProgressService, logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHandler{
		service: s,
		logger:  logger,
	}
}

// GetProjectProgress は学習者×プロジェクトの進捗集計を返すハンドラ
func (h *ProgressHandler) GetProjectProgress(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetProjectProgress"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "project_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("project_id", projectID))

	progress, err := h.service.GetProjectProgress(r.Context(), projectID, learnerID)
	if err != nil {
		logger.Error("Error aggregating project progress in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, progress, logger)
}
