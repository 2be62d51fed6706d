package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskService interface {
	CreateTask(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error)
	GetTask(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.TaskDetail, error)
	PatchTask(ctx context.Context, taskID string, req *model.PatchTaskRequest) (*model.Task, error)
	MoveTask(ctx context.Context, taskID string, req *model.MoveTaskRequest) (*model.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListProjectTasks(ctx context.Context, projectID string, learnerID uuid.UUID) ([]*model.TaskSummary, error)
}

type taskService struct {
	db          *gorm.DB // トランザクション用にDB接続を持つ
	taskRepo    repository.TaskRepository
	depRepo     repository.DependencyRepository
	counterRepo repository.CounterRepository
	progRepo    repository.ProgressRepository
	subRepo     repository.SubmissionRepository
	eventRepo   repository.EventRepository
}

func NewTaskService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	depRepo repository.DependencyRepository,
	counterRepo repository.CounterRepository,
	progRepo repository.ProgressRepository,
	subRepo repository.SubmissionRepository,
	eventRepo repository.EventRepository,
) TaskService {
	return &taskService{
		db:          db,
		taskRepo:    taskRepo,
		depRepo:     depRepo,
		counterRepo: counterRepo,
		progRepo:    progRepo,
		subRepo:     subRepo,
		eventRepo:   eventRepo,
	}
}

// validParentType は親子のタスク種別の組み合わせを検証します。
// project はルート専用、epic は project 直下、task は epic 直下、
// subtask は task または subtask の下に置けます。
func validParentType(childType, parentType model.TaskType) bool {
	switch childType {
	case model.TaskTypeEpic:
		return parentType == model.TaskTypeProject
	case model.TaskTypeTask:
		return parentType == model.TaskTypeEpic
	case model.TaskTypeSubtask:
		return parentType == model.TaskTypeTask || parentType == model.TaskTypeSubtask
	default:
		return false
	}
}

func (s *taskService) CreateTask(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
	if req.Title == "" || !model.ValidTaskType(req.TaskType) {
		return nil, model.ErrInvalidInput
	}

	var created *model.Task

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task := &model.Task{
			Title:       req.Title,
			Description: req.Description,
			Notes:       req.Notes,
			TaskType:    req.TaskType,
			Priority:    model.PriorityDefault,
			Content:     req.Content,
		}
		if req.Priority != nil {
			if *req.Priority < model.PriorityMin || *req.Priority > model.PriorityMax {
				return model.NewAppError("INVALID_INPUT", "優先度は0から4の範囲で指定してください", "priority", model.ErrInvalidInput)
			}
			task.Priority = *req.Priority
		}
		if len(req.AcceptanceCriteria) > 0 {
			buf, err := json.Marshal(req.AcceptanceCriteria)
			if err != nil {
				return model.ErrInternalServer
			}
			task.AcceptanceCriteria = buf
		}

		if req.TaskType == model.TaskTypeProject {
			if req.ParentID != nil {
				return model.NewAppError("INVALID_HIERARCHY", "プロジェクトに親タスクは指定できません", "parent_id", model.ErrHierarchy)
			}
			id, err := NewProjectID(req.ProjectTag)
			if err != nil {
				log.Printf("Error generating project ID: %v", err)
				return model.ErrInternalServer
			}
			task.ID = id
			task.ProjectID = id
		} else {
			if req.ParentID == nil {
				return model.NewAppError("INVALID_HIERARCHY", "親タスクIDは必須です", "parent_id", model.ErrHierarchy)
			}
			parent, err := s.taskRepo.FindByID(ctx, tx, *req.ParentID)
			if err != nil {
				return err
			}
			if !validParentType(req.TaskType, parent.TaskType) {
				return model.NewAppError("INVALID_HIERARCHY", "タスク種別の親子関係が不正です", "task_type", model.ErrHierarchy)
			}
			if parent.Depth()+1 > config.MaxHierarchyDepth {
				return model.NewAppError("INVALID_HIERARCHY", "階層が深すぎます", "parent_id", model.ErrHierarchy)
			}
			count, err := s.taskRepo.CountByProject(ctx, tx, parent.ProjectID)
			if err != nil {
				return model.ErrInternalServer
			}
			if count >= config.MaxGraphNodes {
				return model.NewAppError("INVALID_HIERARCHY", "プロジェクトのタスク数が上限に達しています", "", model.ErrHierarchy)
			}

			id, err := NextChildID(ctx, tx, s.counterRepo, parent.ID)
			if err != nil {
				log.Printf("Error issuing child ID in transaction: %v", err)
				return model.ErrInternalServer
			}
			task.ID = id
			task.ParentID = &parent.ID
			task.ProjectID = parent.ProjectID
		}

		if err := s.taskRepo.Create(ctx, tx, task); err != nil {
			log.Printf("Error creating task in transaction: %v", err)
			return model.ErrInternalServer
		}

		// 親子エッジは階層操作の副作用として自動生成する
		if task.ParentID != nil {
			dep := &model.Dependency{
				TaskID:         task.ID,
				DependsOnID:    *task.ParentID,
				DependencyType: model.DepParentChild,
			}
			if err := s.depRepo.Create(ctx, tx, dep); err != nil {
				log.Printf("Error creating parent_child edge in transaction: %v", err)
				return model.ErrInternalServer
			}
		}

		if len(req.Objectives) > 0 {
			objectives := make([]model.LearningObjective, 0, len(req.Objectives))
			for _, in := range req.Objectives {
				objectives = append(objectives, model.LearningObjective{
					TaskID:     task.ID,
					BloomLevel: in.BloomLevel,
					Text:       in.Text,
				})
			}
			if err := s.taskRepo.ReplaceObjectives(ctx, tx, task.ID, objectives); err != nil {
				return model.ErrInternalServer
			}
		}

		if err := appendTaskEvent(ctx, tx, s.eventRepo, task.ID, model.EventCreated, "", task.Title, req); err != nil {
			return model.ErrInternalServer
		}

		created = task
		return nil
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for CreateTask: %v", err)
		return nil, model.ErrInternalServer
	}
	return created, nil
}

func (s *taskService) GetTask(ctx context.Context, taskID string, learnerID uuid.UUID) (*model.TaskDetail, error) {
	task, err := s.taskRepo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}

	detail := &model.TaskDetail{
		Task:               task,
		AcceptanceCriteria: task.CriteriaList(),
		Status:             model.StatusOpen,
	}
	for _, obj := range task.Objectives {
		detail.Objectives = append(detail.Objectives, model.ObjectiveResponse{
			BloomLevel: obj.BloomLevel,
			Text:       obj.Text,
		})
	}

	progress, err := s.progRepo.Find(ctx, s.db, taskID, learnerID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrInternalServer
	}
	if progress != nil {
		detail.Status = progress.Status
		detail.StartedAt = progress.StartedAt
		detail.CompletedAt = progress.CompletedAt
	}

	ancestors, err := s.collectAncestors(ctx, task)
	if err != nil {
		return nil, err
	}
	detail.Ancestors = ancestors

	outgoing, err := s.depRepo.FindOutgoing(ctx, s.db, taskID)
	if err != nil {
		return nil, model.ErrInternalServer
	}
	for _, dep := range outgoing {
		switch dep.DependencyType {
		case model.DepBlocks:
			target, err := s.taskRepo.FindByID(ctx, s.db, dep.DependsOnID)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					continue
				}
				return nil, model.ErrInternalServer
			}
			targetStatus := model.StatusOpen
			if p, err := s.progRepo.Find(ctx, s.db, target.ID, learnerID); err == nil {
				targetStatus = p.Status
			} else if !errors.Is(err, model.ErrNotFound) {
				return nil, model.ErrInternalServer
			}
			if targetStatus == model.StatusClosed {
				continue
			}
			detail.BlockedBy = append(detail.BlockedBy, model.TaskSummary{
				ID:       target.ID,
				Title:    target.Title,
				TaskType: target.TaskType,
				Priority: target.Priority,
				Status:   targetStatus,
				Depth:    target.Depth(),
			})
		case model.DepRelated:
			detail.Related = append(detail.Related, dep.DependsOnID)
		}
	}

	count, err := s.subRepo.CountByTaskAndLearner(ctx, s.db, taskID, learnerID)
	if err != nil {
		return nil, model.ErrInternalServer
	}
	detail.AttemptCount = count

	return detail, nil
}

// collectAncestors は親リンクをルートまで辿ります。深さ上限を超えたらデータ破損とみなします。
func (s *taskService) collectAncestors(ctx context.Context, task *model.Task) ([]model.TaskSummary, error) {
	var ancestors []model.TaskSummary
	current := task
	for steps := 0; current.ParentID != nil; steps++ {
		if steps >= config.MaxHierarchyDepth {
			log.Printf("Ancestor chain exceeds depth limit for task %s", task.ID)
			return nil, model.ErrInternalServer
		}
		parent, err := s.taskRepo.FindByID(ctx, s.db, *current.ParentID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				log.Printf("Dangling parent link %s for task %s", *current.ParentID, current.ID)
				return nil, model.ErrInternalServer
			}
			return nil, err
		}
		ancestors = append(ancestors, model.TaskSummary{
			ID:       parent.ID,
			Title:    parent.Title,
			TaskType: parent.TaskType,
			Priority: parent.Priority,
			Depth:    parent.Depth(),
		})
		current = parent
	}
	// ルートが先頭になるよう反転する
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}
	return ancestors, nil
}

func (s *taskService) PatchTask(ctx context.Context, taskID string, req *model.PatchTaskRequest) (*model.Task, error) {
	var updated *model.Task

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.taskRepo.FindByID(ctx, tx, taskID)
		if err != nil {
			return err
		}

		updates := make(map[string]interface{})
		if req.Title != nil && *req.Title != "" && *req.Title != task.Title {
			updates["title"] = *req.Title
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.Notes != nil {
			updates["notes"] = *req.Notes
		}
		if req.Content != nil {
			updates["content"] = *req.Content
		}
		if req.Priority != nil {
			if *req.Priority < model.PriorityMin || *req.Priority > model.PriorityMax {
				return model.NewAppError("INVALID_INPUT", "優先度は0から4の範囲で指定してください", "priority", model.ErrInvalidInput)
			}
			updates["priority"] = *req.Priority
		}
		if req.AcceptanceCriteria != nil {
			buf, err := json.Marshal(req.AcceptanceCriteria)
			if err != nil {
				return model.ErrInternalServer
			}
			updates["acceptance_criteria"] = buf
		}

		if len(updates) > 0 {
			if err := s.taskRepo.Update(ctx, tx, taskID, updates); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return model.ErrNotFound
				}
				return model.ErrInternalServer
			}
		}

		if req.Objectives != nil {
			objectives := make([]model.LearningObjective, 0, len(*req.Objectives))
			for _, in := range *req.Objectives {
				objectives = append(objectives, model.LearningObjective{
					TaskID:     taskID,
					BloomLevel: in.BloomLevel,
					Text:       in.Text,
				})
			}
			if err := s.taskRepo.ReplaceObjectives(ctx, tx, taskID, objectives); err != nil {
				return model.ErrInternalServer
			}
		}

		if err := appendTaskEvent(ctx, tx, s.eventRepo, taskID, model.EventUpdated, task.Title, "", req); err != nil {
			return model.ErrInternalServer
		}

		updated, err = s.taskRepo.FindByID(ctx, tx, taskID)
		if err != nil {
			return model.ErrInternalServer
		}
		return nil
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for PatchTask: %v", err)
		return nil, model.ErrInternalServer
	}
	return updated, nil
}

// MoveTask はタスクを別の親の下へ付け替えます。IDは移動しても変わりません。
func (s *taskService) MoveTask(ctx context.Context, taskID string, req *model.MoveTaskRequest) (*model.Task, error) {
	var moved *model.Task

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.taskRepo.FindByID(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if task.TaskType == model.TaskTypeProject {
			return model.NewAppError("INVALID_HIERARCHY", "プロジェクトルートは移動できません", "task_id", model.ErrHierarchy)
		}
		newParent, err := s.taskRepo.FindByID(ctx, tx, req.NewParentID)
		if err != nil {
			return err
		}

		// グラフ構造を変える操作はプロジェクト単位で直列化する
		if err := s.taskRepo.LockProject(ctx, tx, task.ProjectID); err != nil {
			return model.ErrInternalServer
		}

		if newParent.ProjectID != task.ProjectID {
			return model.NewAppError("INVALID_HIERARCHY", "別プロジェクトへの移動はできません", "new_parent_id", model.ErrHierarchy)
		}
		if !validParentType(task.TaskType, newParent.TaskType) {
			return model.NewAppError("INVALID_HIERARCHY", "タスク種別の親子関係が不正です", "new_parent_id", model.ErrHierarchy)
		}
		if newParent.ID == task.ID {
			return model.NewAppError("DEPENDENCY_CYCLE", "自分自身の下には移動できません", "new_parent_id", model.ErrCycle)
		}

		// 新しい親が自分の子孫なら循環になる
		descendants, err := s.collectDescendants(ctx, tx, task)
		if err != nil {
			return err
		}
		if _, ok := descendants[newParent.ID]; ok {
			return model.NewAppError("DEPENDENCY_CYCLE", "子孫タスクの下には移動できません", "new_parent_id", model.ErrCycle)
		}

		// 階層上は子孫でなくても、blocks エッジを経由して新しい親から
		// 自分に到達できるなら、親子エッジの張り替えで循環が生じる
		cyclic, err := reachableInTx(ctx, tx, s.depRepo, task.ProjectID, newParent.ID, taskID)
		if err != nil {
			return err
		}
		if cyclic {
			return model.NewAppError("DEPENDENCY_CYCLE", "依存関係が循環するため移動できません", "new_parent_id", model.ErrCycle)
		}

		oldParentID := ""
		if task.ParentID != nil {
			oldParentID = *task.ParentID
		}
		if oldParentID == newParent.ID {
			moved = task
			return nil
		}

		if err := s.taskRepo.UpdateParent(ctx, tx, taskID, &newParent.ID); err != nil {
			return model.ErrInternalServer
		}

		// 親子エッジを張り替える
		if oldParentID != "" {
			if err := s.depRepo.Delete(ctx, tx, taskID, oldParentID, model.DepParentChild); err != nil && !errors.Is(err, model.ErrNotFound) {
				return model.ErrInternalServer
			}
		}
		dep := &model.Dependency{
			TaskID:         taskID,
			DependsOnID:    newParent.ID,
			DependencyType: model.DepParentChild,
		}
		if err := s.depRepo.Create(ctx, tx, dep); err != nil {
			return model.ErrInternalServer
		}

		if err := appendTaskEvent(ctx, tx, s.eventRepo, taskID, model.EventMoved, oldParentID, newParent.ID, req); err != nil {
			return model.ErrInternalServer
		}

		moved, err = s.taskRepo.FindByID(ctx, tx, taskID)
		if err != nil {
			return model.ErrInternalServer
		}
		return nil
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for MoveTask: %v", err)
		return nil, model.ErrInternalServer
	}
	return moved, nil
}

// DeleteTask はテンプレートタスクを削除します。作成ミスの修正用で、
// 子タスク・被依存エッジ・学習者の進捗が残っている間は削除できません。
func (s *taskService) DeleteTask(ctx context.Context, taskID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.taskRepo.FindByID(ctx, tx, taskID)
		if err != nil {
			return err
		}

		if err := s.taskRepo.LockProject(ctx, tx, task.ProjectID); err != nil {
			return model.ErrInternalServer
		}

		children, err := s.taskRepo.FindChildren(ctx, tx, taskID)
		if err != nil {
			return model.ErrInternalServer
		}
		if len(children) > 0 {
			return model.NewAppError("CONFLICT",
				fmt.Sprintf("%d 件の子タスクが存在するため削除できません", len(children)), "task_id", model.ErrConflict)
		}

		// 他のタスクがこのタスクの完了に依存している間は消せない
		incoming, err := s.depRepo.FindIncoming(ctx, tx, taskID)
		if err != nil {
			return model.ErrInternalServer
		}
		for _, dep := range incoming {
			if dep.DependencyType == model.DepBlocks {
				return model.NewAppError("CONFLICT",
					fmt.Sprintf("タスク %s がこのタスクに依存しているため削除できません", dep.TaskID), "task_id", model.ErrConflict)
			}
		}

		progressCount, err := s.progRepo.CountByTask(ctx, tx, taskID)
		if err != nil {
			return model.ErrInternalServer
		}
		if progressCount > 0 {
			return model.NewAppError("CONFLICT",
				"学習者の進捗が記録されているため削除できません", "task_id", model.ErrConflict)
		}

		if err := s.depRepo.DeleteByTask(ctx, tx, taskID); err != nil {
			return model.ErrInternalServer
		}
		if err := s.taskRepo.ReplaceObjectives(ctx, tx, taskID, nil); err != nil {
			return model.ErrInternalServer
		}
		if err := s.taskRepo.Delete(ctx, tx, taskID); err != nil {
			return model.ErrInternalServer
		}

		return appendTaskEvent(ctx, tx, s.eventRepo, taskID, model.EventDeleted, task.Title, "", nil)
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return err
		}
		log.Printf("Transaction failed for DeleteTask: %v", err)
		return model.ErrInternalServer
	}
	return nil
}

// collectDescendants は親リンクを使って子孫集合を求めます。
// 移動でIDの接頭辞と階層が一致しなくなるため、ID前方一致では判定できません。
func (s *taskService) collectDescendants(ctx context.Context, db *gorm.DB, root *model.Task) (map[string]*model.Task, error) {
	tasks, err := s.taskRepo.FindByProject(ctx, db, root.ProjectID)
	if err != nil {
		return nil, model.ErrInternalServer
	}
	children := buildChildrenMap(tasks)

	descendants := make(map[string]*model.Task)
	queue := []string{root.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if _, seen := descendants[child.ID]; seen {
				continue
			}
			descendants[child.ID] = child
			queue = append(queue, child.ID)
		}
	}
	return descendants, nil
}

func (s *taskService) ListProjectTasks(ctx context.Context, projectID string, learnerID uuid.UUID) ([]*model.TaskSummary, error) {
	tasks, err := s.taskRepo.FindByProject(ctx, s.db, projectID)
	if err != nil {
		log.Printf("Error listing project tasks: %v", err)
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

	summaries := make([]*model.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		status := model.StatusOpen
		if p, ok := progressByTask[t.ID]; ok {
			status = p.Status
		}
		summaries = append(summaries, &model.TaskSummary{
			ID:       t.ID,
			Title:    t.Title,
			TaskType: t.TaskType,
			Priority: t.Priority,
			Status:   status,
			Depth:    t.Depth(),
		})
	}
	return summaries, nil
}

// buildChildrenMap は parent_id リンクから親→子のマップを作ります。
func buildChildrenMap(tasks []*model.Task) map[string][]*model.Task {
	children := make(map[string][]*model.Task, len(tasks))
	for _, t := range tasks {
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		}
	}
	return children
}

// isDomainError はハンドラへそのまま返すべき業務エラーかどうかを判定します。
func isDomainError(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrInvalidInput) ||
		errors.Is(err, model.ErrConflict) ||
		errors.Is(err, model.ErrForbidden) ||
		errors.Is(err, model.ErrHierarchy) ||
		errors.Is(err, model.ErrCycle) ||
		errors.Is(err, model.ErrStatusTransition) ||
		errors.Is(err, model.ErrValidationRequired)
}

// appendTaskEvent はタスク系イベントを同一トランザクションで追記します。
func appendTaskEvent(ctx context.Context, tx *gorm.DB, eventRepo repository.EventRepository, taskID, action, oldValue, newValue string, payload interface{}) error {
	event := &model.Event{
		EntityType: model.EntityTask,
		EntityID:   taskID,
		Action:     action,
		Actor:      "admin",
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if payload != nil {
		if buf, err := json.Marshal(payload); err == nil {
			event.Payload = buf
		}
	}
	if err := eventRepo.Append(ctx, tx, event); err != nil {
		log.Printf("Error appending task event: %v", err)
		return err
	}
	return nil
}
