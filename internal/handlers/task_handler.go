// internal/handlers/task_handler.go
package handlers

import (
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
)

type TaskHandler struct {
	service service.TaskService
	logger  *slog.Logger
}

func NewTaskHandler(s service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		service: s,
		logger:  logger,
	}
}

// GetTask はタスク詳細 (テンプレート + 学習者の状態) を返すハンドラ
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetTask"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	detail, err := h.service.GetTask(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error getting task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, detail, logger)
}

// ListProjectTasks はプロジェクト配下の全タスク要約を返すハンドラ
func (h *TaskHandler) ListProjectTasks(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "ListProjectTasks"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "project_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("project_id", projectID))

	tasks, err := h.service.ListProjectTasks(r.Context(), projectID, learnerID)
	if err != nil {
		logger.Error("Error listing project tasks in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if tasks == nil {
		tasks = []*model.TaskSummary{}
	}
	logger.Info("Project tasks listed successfully", slog.Int("count", len(tasks)))
	webutil.RespondWithJSON(w, http.StatusOK, tasks, logger)
}
