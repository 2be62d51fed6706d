package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Validator は提出内容と受入基準から合否を判定する差し替え可能な戦略です。
type Validator interface {
	Validate(content string, criteria []string) (passed bool, message string)
}

// TextValidator は既定の検証器で、空・空白のみの提出を不合格にします。
type TextValidator struct{}

func (v *TextValidator) Validate(content string, criteria []string) (bool, string) {
	if strings.TrimSpace(content) == "" {
		return false, "Submission is empty"
	}
	return true, ""
}

type SubmissionService interface {
	Submit(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.SubmitRequest) (*model.SubmitResponse, error)
	ListSubmissions(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.Submission, error)
	Revalidate(ctx context.Context, submissionID uuid.UUID, learnerID uuid.UUID) (*model.SubmitResponse, error)
	RegisterValidator(submissionType string, v Validator)
}

type submissionService struct {
	db             *gorm.DB
	taskRepo       repository.TaskRepository
	subRepo        repository.SubmissionRepository
	validationRepo repository.ValidationRepository
	statusService  StatusService
	validators     map[string]Validator
}

func NewSubmissionService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	subRepo repository.SubmissionRepository,
	validationRepo repository.ValidationRepository,
	statusService StatusService,
) SubmissionService {
	return &submissionService{
		db:             db,
		taskRepo:       taskRepo,
		subRepo:        subRepo,
		validationRepo: validationRepo,
		statusService:  statusService,
		validators: map[string]Validator{
			model.SubmissionTypeText: &TextValidator{},
		},
	}
}

// RegisterValidator は submission_type に対応する検証器を登録します。
// 起動時のDI配線からのみ呼ばれる想定です。
func (s *submissionService) RegisterValidator(submissionType string, v Validator) {
	s.validators[submissionType] = v
}

func (s *submissionService) validatorFor(submissionType string) Validator {
	if v, ok := s.validators[submissionType]; ok {
		return v
	}
	return s.validators[model.SubmissionTypeText]
}

// Submit は提出を記録して検証を実行します。合格してもステータスは変えません。
// close 遷移は呼び出し側が明示的に行う契約です。
func (s *submissionService) Submit(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.SubmitRequest) (*model.SubmitResponse, error) {
	task, err := s.taskRepo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}

	// closed のタスクへは提出できない。先に reopen が必要。
	progress, err := s.statusService.GetOrCreateProgress(ctx, taskID, learnerID)
	if err != nil {
		return nil, err
	}
	if progress.Status == model.StatusClosed {
		return nil, model.NewAppError("INVALID_TRANSITION", "完了済みのタスクには提出できません。先に再開してください", "", model.ErrStatusTransition)
	}

	subType := req.SubmissionType
	if subType == "" {
		subType = model.SubmissionTypeText
	}
	passed, message := s.validatorFor(subType).Validate(req.Content, task.CriteriaList())

	var response *model.SubmitResponse

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 試行番号は過去の最大値+1。reopen を挟んでも巻き戻らない。
		max, err := s.subRepo.MaxAttemptNumber(ctx, tx, taskID, learnerID)
		if err != nil {
			return model.ErrInternalServer
		}

		submission := &model.Submission{
			SubmissionID:   uuid.New(),
			TaskID:         taskID,
			LearnerID:      learnerID,
			Content:        req.Content,
			SubmissionType: subType,
			AttemptNumber:  max + 1,
			SubmittedAt:    time.Now(),
		}
		if err := s.subRepo.Create(ctx, tx, submission); err != nil {
			return model.ErrInternalServer
		}

		validation := &model.Validation{
			ValidationID:  uuid.New(),
			SubmissionID:  submission.SubmissionID,
			TaskID:        taskID,
			Passed:        passed,
			ErrorMessage:  message,
			ValidatorType: subType,
			ValidatedAt:   time.Now(),
		}
		if err := s.validationRepo.Create(ctx, tx, validation); err != nil {
			return model.ErrInternalServer
		}

		response = &model.SubmitResponse{
			SubmissionID:    submission.SubmissionID,
			AttemptNumber:   submission.AttemptNumber,
			Passed:          passed,
			Message:         message,
			ValidationCount: 1,
		}
		return nil
	})

	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for Submit: %v", err)
		return nil, model.ErrInternalServer
	}
	return response, nil
}

func (s *submissionService) ListSubmissions(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.Submission, error) {
	if _, err := s.taskRepo.FindByID(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	submissions, err := s.subRepo.FindByTaskAndLearner(ctx, s.db, taskID, learnerID)
	if err != nil {
		log.Printf("Error listing submissions: %v", err)
		return nil, model.ErrInternalServer
	}
	return submissions, nil
}

// Revalidate は既存の提出を再検証し、同じ提出を参照する新しい検証行を追記します。
func (s *submissionService) Revalidate(ctx context.Context, submissionID uuid.UUID, learnerID uuid.UUID) (*model.SubmitResponse, error) {
	submission, err := s.subRepo.FindByID(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.LearnerID != learnerID {
		return nil, model.ErrForbidden
	}
	task, err := s.taskRepo.FindByID(ctx, s.db, submission.TaskID)
	if err != nil {
		return nil, err
	}

	passed, message := s.validatorFor(submission.SubmissionType).Validate(submission.Content, task.CriteriaList())

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		validation := &model.Validation{
			ValidationID:  uuid.New(),
			SubmissionID:  submission.SubmissionID,
			TaskID:        submission.TaskID,
			Passed:        passed,
			ErrorMessage:  message,
			ValidatorType: submission.SubmissionType,
			ValidatedAt:   time.Now(),
		}
		return s.validationRepo.Create(ctx, tx, validation)
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		log.Printf("Transaction failed for Revalidate: %v", err)
		return nil, model.ErrInternalServer
	}

	// 同じ提出に紐づく検証履歴の件数をレスポンスに含める
	history, err := s.validationRepo.FindBySubmission(ctx, s.db, submission.SubmissionID)
	if err != nil {
		log.Printf("Error loading validation history for submission %s: %v", submission.SubmissionID, err)
		return nil, model.ErrInternalServer
	}

	return &model.SubmitResponse{
		SubmissionID:    submission.SubmissionID,
		AttemptNumber:   submission.AttemptNumber,
		Passed:          passed,
		Message:         message,
		ValidationCount: len(history),
	}, nil
}
