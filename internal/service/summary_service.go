package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SummaryService interface {
	Summarize(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.StatusSummary, error)
	ListSummaries(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.StatusSummary, error)
}

type summaryService struct {
	db          *gorm.DB
	taskRepo    repository.TaskRepository
	progRepo    repository.ProgressRepository
	subRepo     repository.SubmissionRepository
	summaryRepo repository.SummaryRepository
}

func NewSummaryService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	progRepo repository.ProgressRepository,
	subRepo repository.SubmissionRepository,
	summaryRepo repository.SummaryRepository,
) SummaryService {
	return &summaryService{
		db:          db,
		taskRepo:    taskRepo,
		progRepo:    progRepo,
		subRepo:     subRepo,
		summaryRepo: summaryRepo,
	}
}

// Summarize は完了タスクの振り返りテキストを生成して新しい版として追記します。
// subtask は自身の提出実績、それ以外は直下の子の最新サマリを束ねます。
// 既存の版は決して上書きしません。
func (s *summaryService) Summarize(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.StatusSummary, error) {
	task, err := s.taskRepo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}

	progress, err := s.progRepo.Find(ctx, s.db, taskID, learnerID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("INVALID_TRANSITION", "完了していないタスクは要約できません", "", model.ErrStatusTransition)
		}
		return nil, model.ErrInternalServer
	}
	if progress.Status != model.StatusClosed {
		return nil, model.NewAppError("INVALID_TRANSITION", "完了していないタスクは要約できません", "", model.ErrStatusTransition)
	}

	text, err := s.composeSummary(ctx, task, learnerID)
	if err != nil {
		return nil, err
	}

	var created *model.StatusSummary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		max, err := s.summaryRepo.MaxVersion(ctx, tx, taskID, learnerID)
		if err != nil {
			return model.ErrInternalServer
		}
		summary := &model.StatusSummary{
			SummaryID: uuid.New(),
			TaskID:    taskID,
			LearnerID: learnerID,
			Summary:   text,
			Version:   max + 1,
			CreatedAt: time.Now(),
		}
		if err := s.summaryRepo.Create(ctx, tx, summary); err != nil {
			return model.ErrInternalServer
		}
		created = summary
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for Summarize: %v", err)
		return nil, model.ErrInternalServer
	}
	return created, nil
}

func (s *summaryService) composeSummary(ctx context.Context, task *model.Task, learnerID uuid.UUID) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s\n", task.ID, task.TaskType, task.Title)

	attempts, err := s.subRepo.CountByTaskAndLearner(ctx, s.db, task.ID, learnerID)
	if err != nil {
		return "", model.ErrInternalServer
	}
	fmt.Fprintf(&b, "Attempts: %d\n", attempts)
	if len(task.Objectives) > 0 {
		fmt.Fprintf(&b, "Objectives: %d\n", len(task.Objectives))
	}

	if task.TaskType == model.TaskTypeSubtask {
		submissions, err := s.subRepo.FindByTaskAndLearner(ctx, s.db, task.ID, learnerID)
		if err != nil {
			return "", model.ErrInternalServer
		}
		if len(submissions) > 0 {
			last := submissions[len(submissions)-1]
			fmt.Fprintf(&b, "Final submission (attempt %d, %s):\n%s\n",
				last.AttemptNumber, last.SubmissionType, last.Content)
		}
		return b.String(), nil
	}

	// 子の最新サマリを束ねる
	children, err := s.taskRepo.FindChildren(ctx, s.db, task.ID)
	if err != nil {
		return "", model.ErrInternalServer
	}
	if len(children) > 0 {
		ids := make([]string, 0, len(children))
		for _, child := range children {
			ids = append(ids, child.ID)
		}
		latest, err := s.summaryRepo.FindLatestByTasks(ctx, s.db, ids, learnerID)
		if err != nil {
			return "", model.ErrInternalServer
		}
		b.WriteString("Children:\n")
		for _, child := range children {
			if summary, ok := latest[child.ID]; ok {
				fmt.Fprintf(&b, "- %s (v%d): %s\n", child.Title, summary.Version, firstLine(summary.Summary))
			} else {
				fmt.Fprintf(&b, "- %s: no summary yet\n", child.Title)
			}
		}
	}
	return b.String(), nil
}

func (s *summaryService) ListSummaries(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.StatusSummary, error) {
	if _, err := s.taskRepo.FindByID(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	summaries, err := s.summaryRepo.FindByTaskAndLearner(ctx, s.db, taskID, learnerID)
	if err != nil {
		log.Printf("Error listing summaries: %v", err)
		return nil, model.ErrInternalServer
	}
	return summaries, nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
