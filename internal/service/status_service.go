package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// allowedTransitions は状態遷移表です。表に無い遷移は全て拒否します。
var allowedTransitions = map[model.TaskStatus]map[model.TaskStatus]bool{
	model.StatusOpen:       {model.StatusInProgress: true, model.StatusBlocked: true},
	model.StatusInProgress: {model.StatusOpen: true, model.StatusBlocked: true, model.StatusClosed: true},
	model.StatusBlocked:    {model.StatusOpen: true, model.StatusInProgress: true},
	model.StatusClosed:     {model.StatusOpen: true}, // 明示的な reopen のみ
}

type StatusService interface {
	GetOrCreateProgress(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.LearnerTaskProgress, error)
	StartTask(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.TransitionResponse, error)
	CloseTask(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.CloseTaskRequest) (*model.TransitionResponse, error)
	ReopenTask(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.ReopenTaskRequest) (*model.TransitionResponse, error)
	Transition(ctx context.Context, taskID string, learnerID uuid.UUID, newStatus model.TaskStatus, reason string) (*model.TransitionResponse, error)
}

type statusService struct {
	db             *gorm.DB
	taskRepo       repository.TaskRepository
	progRepo       repository.ProgressRepository
	validationRepo repository.ValidationRepository
	eventRepo      repository.EventRepository
	notifier       Notifier
}

func NewStatusService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	progRepo repository.ProgressRepository,
	validationRepo repository.ValidationRepository,
	eventRepo repository.EventRepository,
	notifier Notifier,
) StatusService {
	return &statusService{
		db:             db,
		taskRepo:       taskRepo,
		progRepo:       progRepo,
		validationRepo: validationRepo,
		eventRepo:      eventRepo,
		notifier:       notifier,
	}
}

// GetOrCreateProgress は進捗行を冪等に取得します。
// 行が無ければ open で作成し、同時作成の衝突時は再読込で1行に収束させます。
func (s *statusService) GetOrCreateProgress(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.LearnerTaskProgress, error) {
	progress, err := s.progRepo.Find(ctx, s.db, taskID, learnerID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrInternalServer
	}

	if _, err := s.taskRepo.FindByID(ctx, s.db, taskID); err != nil {
		return nil, err
	}

	created := &model.LearnerTaskProgress{
		ProgressID: uuid.New(),
		TaskID:     taskID,
		LearnerID:  learnerID,
		Status:     model.StatusOpen,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.progRepo.Create(ctx, tx, created)
	})
	if err == nil {
		return created, nil
	}
	if errors.Is(err, model.ErrConflict) {
		// 同時作成に負けた側は勝者の行を読み直す
		progress, err := s.progRepo.Find(ctx, s.db, taskID, learnerID)
		if err != nil {
			return nil, model.ErrInternalServer
		}
		return progress, nil
	}
	log.Printf("Transaction failed for GetOrCreateProgress: %v", err)
	return nil, model.ErrInternalServer
}

func (s *statusService) StartTask(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.TransitionResponse, error) {
	return s.Transition(ctx, taskID, learnerID, model.StatusInProgress, "")
}

func (s *statusService) CloseTask(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.CloseTaskRequest) (*model.TransitionResponse, error) {
	reason := ""
	if req != nil {
		reason = req.Reason
	}
	return s.Transition(ctx, taskID, learnerID, model.StatusClosed, reason)
}

func (s *statusService) ReopenTask(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.ReopenTaskRequest) (*model.TransitionResponse, error) {
	if req == nil || req.Reason == "" {
		return nil, model.NewAppError("INVALID_INPUT", "再開には理由の入力が必要です", "reason", model.ErrInvalidInput)
	}
	return s.Transition(ctx, taskID, learnerID, model.StatusOpen, req.Reason)
}

// Transition は状態遷移を検証して適用します。
// close の前提条件チェック、進捗更新、イベント追記を同一トランザクションで行います。
func (s *statusService) Transition(ctx context.Context, taskID string, learnerID uuid.UUID, newStatus model.TaskStatus, reason string) (*model.TransitionResponse, error) {
	if newStatus != model.StatusOpen && newStatus != model.StatusInProgress &&
		newStatus != model.StatusBlocked && newStatus != model.StatusClosed {
		return nil, model.ErrInvalidInput
	}

	// 進捗行を必ず実体化してから遷移を判定する
	if _, err := s.GetOrCreateProgress(ctx, taskID, learnerID); err != nil {
		return nil, err
	}

	var response *model.TransitionResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// トランザクション内で読み直して判定する
		current, err := s.progRepo.Find(ctx, tx, taskID, learnerID)
		if err != nil {
			return model.ErrInternalServer
		}
		oldStatus := current.Status

		if oldStatus == newStatus {
			return model.NewAppError("INVALID_TRANSITION",
				fmt.Sprintf("タスクは既に %s です", newStatus), "", model.ErrStatusTransition)
		}
		if !allowedTransitions[oldStatus][newStatus] {
			return model.NewAppError("INVALID_TRANSITION",
				fmt.Sprintf("%s から %s への遷移は許可されていません", oldStatus, newStatus), "", model.ErrStatusTransition)
		}
		if oldStatus == model.StatusClosed && newStatus == model.StatusOpen && reason == "" {
			return model.NewAppError("INVALID_INPUT", "再開には理由の入力が必要です", "reason", model.ErrInvalidInput)
		}

		task, err := s.taskRepo.FindByID(ctx, tx, taskID)
		if err != nil {
			return err
		}

		if newStatus == model.StatusClosed {
			if err := s.checkClosePreconditions(ctx, tx, task, learnerID); err != nil {
				return err
			}
		}

		now := time.Now()
		updates := map[string]interface{}{"status": newStatus}
		switch newStatus {
		case model.StatusInProgress:
			if current.StartedAt == nil {
				updates["started_at"] = now
			}
		case model.StatusClosed:
			updates["completed_at"] = now
			updates["close_reason"] = reason
		case model.StatusOpen:
			if oldStatus == model.StatusClosed {
				// reopen は完了時刻を取り消す。提出・検証履歴は残す。
				updates["completed_at"] = nil
				updates["close_reason"] = reason
			}
		}
		if err := s.progRepo.Update(ctx, tx, current.ProgressID, updates); err != nil {
			return model.ErrInternalServer
		}

		payload, _ := json.Marshal(map[string]string{
			"learner_id": learnerID.String(),
			"reason":     reason,
		})
		event := &model.Event{
			EntityType: model.EntityProgress,
			EntityID:   taskID,
			Action:     model.EventStatusChanged,
			Actor:      learnerID.String(),
			OldValue:   string(oldStatus),
			NewValue:   string(newStatus),
			Payload:    payload,
		}
		if err := s.eventRepo.Append(ctx, tx, event); err != nil {
			return model.ErrInternalServer
		}

		response = &model.TransitionResponse{
			TaskID:    taskID,
			OldStatus: oldStatus,
			NewStatus: newStatus,
		}
		return nil
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for Transition: %v", err)
		return nil, model.ErrInternalServer
	}

	// 通知はベストエフォート。失敗しても遷移は成立している。
	if newStatus == model.StatusClosed && s.notifier != nil {
		if err := s.notifier.NotifyTaskClosed(ctx, learnerID, taskID); err != nil {
			log.Printf("Error sending close notification for task %s: %v", taskID, err)
		}
	}

	return response, nil
}

// checkClosePreconditions は close 遷移の前提条件を検証します。
//  1. この学習者にとって全ての子タスクが closed であること。
//  2. subtask の場合、最新の検証結果が passed であること
//     (新しい失敗提出は過去の合格を無効化する)。
func (s *statusService) checkClosePreconditions(ctx context.Context, tx *gorm.DB, task *model.Task, learnerID uuid.UUID) error {
	children, err := s.taskRepo.FindChildren(ctx, tx, task.ID)
	if err != nil {
		return model.ErrInternalServer
	}
	if len(children) > 0 {
		ids := make([]string, 0, len(children))
		titleByID := make(map[string]string, len(children))
		for _, child := range children {
			ids = append(ids, child.ID)
			titleByID[child.ID] = child.Title
		}
		progressByTask, err := s.progRepo.FindByTasksForLearner(ctx, tx, ids, learnerID)
		if err != nil {
			return model.ErrInternalServer
		}
		var open []string
		for _, id := range ids {
			p, ok := progressByTask[id]
			if !ok || p.Status != model.StatusClosed {
				open = append(open, titleByID[id])
			}
		}
		if len(open) > 0 {
			sort.Strings(open)
			sample := open
			if len(sample) > 3 {
				sample = sample[:3]
			}
			msg := fmt.Sprintf("%d children still open: %s", len(open), strings.Join(sample, ", "))
			return model.NewAppError("CHILDREN_NOT_CLOSED", msg, "", model.ErrStatusTransition)
		}
	}

	if task.TaskType == model.TaskTypeSubtask {
		latest, err := s.validationRepo.FindLatestForTaskAndLearner(ctx, tx, task.ID, learnerID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.NewAppError("VALIDATION_REQUIRED", "合格した提出がありません", "", model.ErrValidationRequired)
			}
			return model.ErrInternalServer
		}
		if !latest.Passed {
			return model.NewAppError("VALIDATION_REQUIRED", "最新の提出が不合格です", "", model.ErrValidationRequired)
		}
	}
	return nil
}
