// internal/handlers/work_handler.go
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
)

// WorkHandler は学習者の作業ループ (ready → start → submit → close → reopen) を受け持ちます。
type WorkHandler struct {
	graphService  service.GraphService
	statusService service.StatusService
	cfg           *config.Config
	logger        *slog.Logger
}

func NewWorkHandler(graphService service.GraphService, statusService service.StatusService, cfg *config.Config, logger *slog.Logger) *WorkHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkHandler{
		graphService:  graphService,
		statusService: statusService,
		cfg:           cfg,
		logger:        logger,
	}
}

// GetReadyTasks は今すぐ着手できるタスクの一覧を返すハンドラ
func (h *WorkHandler) GetReadyTasks(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetReadyTasks"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	logger = logger.With(slog.String("learner_id", learnerID.String()))

	projectID := chi.URLParam(r, "project_id")
	taskType := model.TaskType(r.URL.Query().Get("task_type"))
	if taskType != "" && !model.ValidTaskType(taskType) {
		appErr := model.NewAppError("INVALID_INPUT", "task_type の値が不正です。", "task_type", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	limit := h.cfg.App.ReadyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			appErr := model.NewAppError("INVALID_INPUT", "limit の値が不正です。", "limit", model.ErrInvalidInput)
			webutil.HandleError(w, logger, appErr)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	tasks, err := h.graphService.GetReadyTasks(r.Context(), projectID, learnerID, taskType, limit)
	if err != nil {
		logger.Error("Error computing ready tasks in service", slog.Any("error", err), slog.String("project_id", projectID))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Ready tasks computed successfully", slog.Int("count", len(tasks)))
	webutil.RespondWithJSON(w, http.StatusOK, tasks, logger)
}

// StartTask はタスクを in_progress に遷移させるハンドラ
func (h *WorkHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "StartTask"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	result, err := h.statusService.StartTask(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error starting task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Task started successfully")
	webutil.RespondWithJSON(w, http.StatusOK, result, logger)
}

// CloseTask はタスクを closed に遷移させるハンドラ
func (h *WorkHandler) CloseTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "CloseTask"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	// close の理由は任意。ボディ無しも許容する。
	var req model.CloseTaskRequest
	if r.ContentLength > 0 {
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
	}

	result, err := h.statusService.CloseTask(r.Context(), taskID, learnerID, &req)
	if err != nil {
		logger.Error("Error closing task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Task closed successfully")
	webutil.RespondWithJSON(w, http.StatusOK, result, logger)
}

// ReopenTask は closed のタスクを open へ戻すハンドラ (go_back)
func (h *WorkHandler) ReopenTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "ReopenTask"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	var req model.ReopenTaskRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	result, err := h.statusService.ReopenTask(r.Context(), taskID, learnerID, &req)
	if err != nil {
		logger.Error("Error reopening task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Task reopened successfully")
	webutil.RespondWithJSON(w, http.StatusOK, result, logger)
}

// GetBlockingTasks は直接の未完了ブロッカーを返すハンドラ (診断表示用)
func (h *WorkHandler) GetBlockingTasks(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetBlockingTasks"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("learner_id", learnerID.String()), slog.String("task_id", taskID))

	blockers, err := h.graphService.GetBlockingTasks(r.Context(), taskID, learnerID)
	if err != nil {
		logger.Error("Error finding blocking tasks in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if blockers == nil {
		blockers = []*model.TaskSummary{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, blockers, logger)
}
