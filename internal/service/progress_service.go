package service

import (
	"context"
	"log"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProgressService interface {
	GetProjectProgress(ctx context.Context, projectID string, learnerID uuid.UUID) (*model.ProjectProgressResponse, error)
}

type progressService struct {
	db             *gorm.DB
	taskRepo       repository.TaskRepository
	progRepo       repository.ProgressRepository
	validationRepo repository.ValidationRepository
}

func NewProgressService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	progRepo repository.ProgressRepository,
	validationRepo repository.ValidationRepository,
) ProgressService {
	return &progressService{
		db:             db,
		taskRepo:       taskRepo,
		progRepo:       progRepo,
		validationRepo: validationRepo,
	}
}

// GetProjectProgress は学習者ごとの進捗集計を返します。
// 集計は保存せず毎回導出します (進捗行が無いタスクは open として数える)。
func (s *progressService) GetProjectProgress(ctx context.Context, projectID string, learnerID uuid.UUID) (*model.ProjectProgressResponse, error) {
	tasks, err := s.taskRepo.FindByProject(ctx, s.db, projectID)
	if err != nil {
		log.Printf("Error loading project tasks for aggregation: %v", err)
		return nil, model.ErrInternalServer
	}
	if len(tasks) == 0 {
		return nil, model.ErrNotFound
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	progressByTask, err := s.progRepo.FindByTasksForLearner(ctx, s.db, ids, learnerID)
	if err != nil {
		return nil, model.ErrInternalServer
	}

	statusCounts := map[model.TaskStatus]int{
		model.StatusOpen:       0,
		model.StatusInProgress: 0,
		model.StatusBlocked:    0,
		model.StatusClosed:     0,
	}
	for _, id := range ids {
		status := model.StatusOpen
		if p, ok := progressByTask[id]; ok {
			status = p.Status
		}
		statusCounts[status]++
	}

	// 到達度: その目標を持つタスクに合格検証があれば達成とみなす (導出値、保存しない)
	passedTasks, err := s.validationRepo.FindPassedTaskIDs(ctx, s.db, ids, learnerID)
	if err != nil {
		return nil, model.ErrInternalServer
	}
	byBloom := make(map[model.BloomLevel]*model.BloomLevelProgress)
	for _, t := range tasks {
		for _, obj := range t.Objectives {
			entry, ok := byBloom[obj.BloomLevel]
			if !ok {
				entry = &model.BloomLevelProgress{BloomLevel: obj.BloomLevel}
				byBloom[obj.BloomLevel] = entry
			}
			entry.Total++
			if passedTasks[t.ID] {
				entry.Achieved++
			}
		}
	}
	objectives := make([]model.BloomLevelProgress, 0, len(byBloom))
	for _, level := range model.BloomLevels {
		if entry, ok := byBloom[level]; ok {
			objectives = append(objectives, *entry)
		}
	}

	total := len(ids)
	percent := 0.0
	if total > 0 {
		percent = float64(statusCounts[model.StatusClosed]) / float64(total) * 100
	}

	return &model.ProjectProgressResponse{
		ProjectID:     projectID,
		TotalTasks:    total,
		StatusCounts:  statusCounts,
		PercentClosed: percent,
		Objectives:    objectives,
	}, nil
}
