// internal/handlers/learner_handler.go
package handlers

import (
	"log/slog"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/service"
	"go_4_curriculum_keep/internal/webutil"
)

type LearnerHandler struct {
	service service.LearnerService
	logger  *slog.Logger
}

func NewLearnerHandler(s service.LearnerService, logger *slog.Logger) *LearnerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LearnerHandler{
		service: s,
		logger:  logger,
	}
}

// Register は新規学習者を登録するハンドラ
func (h *LearnerHandler) Register(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "Register"))

	var req model.RegisterRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	learner, err := h.service.Register(r.Context(), &req)
	if err != nil {
		logger.Error("Error registering learner in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Learner registered", slog.String("learner_id", learner.LearnerID.String()))
	webutil.RespondWithJSON(w, http.StatusCreated, learner, logger)
}

// Login は認証してアクセストークンを発行するハンドラ
func (h *LearnerHandler) Login(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "Login"))

	var req model.LoginRequest
	if !decodeAndValidate(w, r, logger, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		// 失敗理由の詳細はログにのみ残し、クライアントには汎用メッセージを返す
		logger.Warn("Login failed", slog.String("email", req.Email), slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, resp, logger)
}

// GetMe は認証済み学習者自身の情報を返すハンドラ
func (h *LearnerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetMe"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}

	learner, err := h.service.GetLearner(r.Context(), learnerID)
	if err != nil {
		logger.Error("Error getting learner in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, learner, logger)
}

// DeleteMe は学習者アカウントと個人データを削除するハンドラ
func (h *LearnerHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "DeleteMe"))

	learnerID, ok := learnerFromContext(w, r, logger)
	if !ok {
		return
	}

	if err := h.service.DeleteLearner(r.Context(), learnerID); err != nil {
		logger.Error("Error deleting learner in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Learner deleted", slog.String("learner_id", learnerID.String()))
	w.WriteHeader(http.StatusNoContent)
}
