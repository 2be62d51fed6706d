// internal/handlers/admin_handler.go
package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/go-chi/chi/v5"
)

// ingest リクエストボディの上限 (1MB)
const maxIngestBodyBytes = 1 << 20

// AdminHandler はカリキュラム編集者向けの管理操作をまとめたハンドラ
type AdminHandler struct {
	taskService   service.TaskService
	graphService  service.GraphService
	ingestService service.IngestService
	logger        *slog.Logger
}

func NewAdminHandler(ts service.TaskService, gs service.GraphService, is service.IngestService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		taskService:   ts,
		graphService:  gs,
		ingestService: is,
		logger:        logger,
	}
}

// CreateTask はタスク(プロジェクトルート含む)を作成するハンドラ
func (h *AdminHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "CreateTask"))

	var req model.CreateTaskRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), &req)
	if err != nil {
		logger.Error("Error creating task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Task created", slog.String("task_id", task.ID), slog.String("task_type", string(task.TaskType)))
	webutil.RespondWithJSON(w, http.StatusCreated, task, logger)
}

// PatchTask はタスクのメタデータを部分更新するハンドラ
func (h *AdminHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PatchTask"))

	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("task_id", taskID))

	var req model.PatchTaskRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	task, err := h.taskService.PatchTask(r.Context(), taskID, &req)
	if err != nil {
		logger.Error("Error patching task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, task, logger)
}

// DeleteTask はテンプレートタスクを削除するハンドラ。
// 子・被依存・学習者進捗が残っている場合は 409 になる
func (h *AdminHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "DeleteTask"))

	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("task_id", taskID))

	if err := h.taskService.DeleteTask(r.Context(), taskID); err != nil {
		logger.Error("Error deleting task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Task deleted successfully")
	w.WriteHeader(http.StatusNoContent)
}

// MoveTask はタスクを別の親の配下へ移動するハンドラ。ID は変わらない
func (h *AdminHandler) MoveTask(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "MoveTask"))

	taskID := chi.URLParam(r, "task_id")
	logger = logger.With(slog.String("task_id", taskID))

	var req model.MoveTaskRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	task, err := h.taskService.MoveTask(r.Context(), taskID, &req)
	if err != nil {
		logger.Error("Error moving task in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Task moved", slog.String("new_parent_id", req.NewParentID))
	webutil.RespondWithJSON(w, http.StatusOK, task, logger)
}

// AddDependency は依存エッジを追加するハンドラ
func (h *AdminHandler) AddDependency(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "AddDependency"))

	var req model.AddDependencyRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	if err := h.graphService.AddDependency(r.Context(), &req); err != nil {
		logger.Error("Error adding dependency in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Dependency added",
		slog.String("task_id", req.TaskID),
		slog.String("depends_on_id", req.DependsOnID),
		slog.String("dependency_type", string(req.DependencyType)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveDependency は依存エッジを削除するハンドラ
func (h *AdminHandler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "RemoveDependency"))

	var req model.RemoveDependencyRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	if err := h.graphService.RemoveDependency(r.Context(), &req); err != nil {
		logger.Error("Error removing dependency in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckCycle は指定エッジを追加した場合に閉路が生じるかを返すハンドラ
func (h *AdminHandler) CheckCycle(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "CheckCycle"))

	taskID := r.URL.Query().Get("task_id")
	dependsOnID := r.URL.Query().Get("depends_on_id")
	if taskID == "" || dependsOnID == "" {
		appErr := model.NewAppError("VALIDATION_ERROR", "task_id と depends_on_id は必須です。", "", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	wouldCycle, err := h.graphService.WouldCreateCycle(r.Context(), taskID, dependsOnID)
	if err != nil {
		logger.Error("Error checking cycle in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]bool{"would_create_cycle": wouldCycle}, logger)
}

// DetectCycles はプロジェクト全体の閉路診断を返すハンドラ
func (h *AdminHandler) DetectCycles(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "DetectCycles"))

	projectID := chi.URLParam(r, "project_id")
	logger = logger.With(slog.String("project_id", projectID))

	report, err := h.graphService.DetectCycles(r.Context(), projectID)
	if err != nil {
		logger.Error("Error detecting cycles in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, report, logger)
}

// IngestProject はYAMLのツリー定義からプロジェクト一式を一括登録するハンドラ
func (h *AdminHandler) IngestProject(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "IngestProject"))

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBodyBytes))
	if err != nil {
		logger.Warn("Failed to read request body", slog.Any("error", err))
		appErr := model.NewAppError("INVALID_REQUEST_BODY", "リクエストボディの読み取りに失敗しました。", "", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	result, err := h.ingestService.IngestYAML(r.Context(), raw)
	if err != nil {
		logger.Error("Error ingesting project in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Project ingested",
		slog.String("project_id", result.ProjectID),
		slog.Int("task_count", result.TaskCount),
		slog.Int("dependency_count", result.DependencyCount),
	)
	webutil.RespondWithJSON(w, http.StatusCreated, result, logger)
}
