package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type IngestService interface {
	IngestYAML(ctx context.Context, raw []byte) (*model.IngestResult, error)
	IngestTree(ctx context.Context, doc *model.ProjectTreeDocument) (*model.IngestResult, error)
}

type ingestService struct {
	db          *gorm.DB
	taskRepo    repository.TaskRepository
	depRepo     repository.DependencyRepository
	counterRepo repository.CounterRepository
	eventRepo   repository.EventRepository
}

func NewIngestService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	depRepo repository.DependencyRepository,
	counterRepo repository.CounterRepository,
	eventRepo repository.EventRepository,
) IngestService {
	return &ingestService{
		db:          db,
		taskRepo:    taskRepo,
		depRepo:     depRepo,
		counterRepo: counterRepo,
		eventRepo:   eventRepo,
	}
}

// IngestYAML はYAMLのカリキュラム文書をパースして取り込みます。
func (s *ingestService) IngestYAML(ctx context.Context, raw []byte) (*model.IngestResult, error) {
	var doc model.ProjectTreeDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, model.NewAppError("INVALID_INPUT", "YAMLの解析に失敗しました: "+err.Error(), "", model.ErrInvalidInput)
	}
	return s.IngestTree(ctx, &doc)
}

// IngestTree は宣言的なツリーをタスク・エッジ・学習目標に展開します。
// 文書全体をひとつのトランザクションで取り込み、途中で失敗したら全て巻き戻します。
// ノード種別は深さで決まり、依存はタイトル参照を生成済みIDへ解決します。
func (s *ingestService) IngestTree(ctx context.Context, doc *model.ProjectTreeDocument) (*model.IngestResult, error) {
	if doc == nil || doc.Project.Title == "" {
		return nil, model.NewAppError("INVALID_INPUT", "project.title は必須です", "title", model.ErrInvalidInput)
	}

	result := &model.IngestResult{TaskIDsByTitle: make(map[string]string)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projectID, err := NewProjectID(doc.Project.Tag)
		if err != nil {
			log.Printf("Error generating project ID for ingest: %v", err)
			return model.ErrInternalServer
		}
		root := &model.Task{
			ID:          projectID,
			ProjectID:   projectID,
			Title:       doc.Project.Title,
			Description: doc.Project.Description,
			Content:     doc.Project.Content,
			TaskType:    model.TaskTypeProject,
			Priority:    model.PriorityDefault,
		}
		if err := s.taskRepo.Create(ctx, tx, root); err != nil {
			return model.ErrInternalServer
		}
		result.ProjectID = projectID
		result.TaskCount = 1
		result.TaskIDsByTitle[root.Title] = root.ID

		// 依存エッジはタイトル解決のため全ノード作成後に張る
		type pendingEdge struct {
			fromID  string
			toTitle string
			depType model.DependencyType
		}
		var pending []pendingEdge

		var walk func(parent *model.Task, nodes []model.TreeNode, depth int) error
		walk = func(parent *model.Task, nodes []model.TreeNode, depth int) error {
			if depth > config.MaxHierarchyDepth {
				return model.NewAppError("INVALID_HIERARCHY", "階層が深すぎます", "", model.ErrHierarchy)
			}
			taskType := model.TaskTypeSubtask
			switch depth {
			case 1:
				taskType = model.TaskTypeEpic
			case 2:
				taskType = model.TaskTypeTask
			}
			for i := range nodes {
				node := &nodes[i]
				if result.TaskCount >= config.MaxGraphNodes {
					return model.NewAppError("INVALID_HIERARCHY", "プロジェクトのタスク数が上限に達しています", "", model.ErrHierarchy)
				}
				id, err := NextChildID(ctx, tx, s.counterRepo, parent.ID)
				if err != nil {
					return model.ErrInternalServer
				}
				task := &model.Task{
					ID:                 id,
					ParentID:           &parent.ID,
					ProjectID:          projectID,
					Title:              node.Title,
					Description:        node.Description,
					Notes:              node.Notes,
					Content:            node.Content,
					TaskType:           taskType,
					Priority:           model.PriorityDefault,
					AcceptanceCriteria: model.CriteriaJSON(node.AcceptanceCriteria),
				}
				if node.Priority != nil {
					task.Priority = *node.Priority
				}
				if err := s.taskRepo.Create(ctx, tx, task); err != nil {
					return model.ErrInternalServer
				}
				result.TaskCount++
				if _, dup := result.TaskIDsByTitle[node.Title]; dup {
					return model.NewAppError("INVALID_INPUT",
						fmt.Sprintf("タイトルが重複しています: %s", node.Title), "title", model.ErrInvalidInput)
				}
				result.TaskIDsByTitle[node.Title] = id

				dep := &model.Dependency{
					TaskID:         id,
					DependsOnID:    parent.ID,
					DependencyType: model.DepParentChild,
				}
				if err := s.depRepo.Create(ctx, tx, dep); err != nil {
					return model.ErrInternalServer
				}
				result.DependencyCount++

				if len(node.Objectives) > 0 {
					objectives := make([]model.LearningObjective, 0, len(node.Objectives))
					for _, in := range node.Objectives {
						objectives = append(objectives, model.LearningObjective{
							TaskID:     id,
							BloomLevel: in.BloomLevel,
							Text:       in.Text,
						})
					}
					if err := s.taskRepo.ReplaceObjectives(ctx, tx, id, objectives); err != nil {
						return model.ErrInternalServer
					}
				}

				for _, title := range node.DependsOn {
					pending = append(pending, pendingEdge{fromID: id, toTitle: title, depType: model.DepBlocks})
				}
				for _, title := range node.RelatedTo {
					pending = append(pending, pendingEdge{fromID: id, toTitle: title, depType: model.DepRelated})
				}

				// subtask 以下のネストは深さに関わらず subtask のまま許容する
				if len(node.Children) > 0 {
					if err := walk(task, node.Children, depth+1); err != nil {
						return err
					}
				}
			}
			return nil
		}
		if err := walk(root, doc.Project.Epics, 1); err != nil {
			return err
		}

		// タイトル参照を解決して blocks / related エッジを張る。
		// 文書は作成順に閉じているとは限らないため、挿入ごとに到達可能性を検査する。
		for _, edge := range pending {
			toID, ok := result.TaskIDsByTitle[edge.toTitle]
			if !ok {
				return model.NewAppError("NOT_FOUND",
					fmt.Sprintf("依存先タイトルが見つかりません: %s", edge.toTitle), "depends_on", model.ErrNotFound)
			}
			if toID == edge.fromID {
				return model.NewAppError("DEPENDENCY_CYCLE", "自分自身への依存は追加できません", "depends_on", model.ErrCycle)
			}
			if edge.depType == model.DepBlocks {
				cyclic, err := reachableInTx(ctx, tx, s.depRepo, projectID, toID, edge.fromID)
				if err != nil {
					return err
				}
				if cyclic {
					return model.NewAppError("DEPENDENCY_CYCLE",
						fmt.Sprintf("依存関係が循環します: %s", edge.toTitle), "depends_on", model.ErrCycle)
				}
			}
			dep := &model.Dependency{
				TaskID:         edge.fromID,
				DependsOnID:    toID,
				DependencyType: edge.depType,
			}
			if err := s.depRepo.Create(ctx, tx, dep); err != nil {
				if errors.Is(err, model.ErrConflict) {
					continue
				}
				return model.ErrInternalServer
			}
			result.DependencyCount++
		}

		event := &model.Event{
			EntityType: model.EntityTask,
			EntityID:   projectID,
			Action:     model.EventCreated,
			Actor:      "admin",
			NewValue:   doc.Project.Title,
		}
		if err := s.eventRepo.Append(ctx, tx, event); err != nil {
			return model.ErrInternalServer
		}
		return nil
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return nil, err
		}
		log.Printf("Transaction failed for IngestTree: %v", err)
		return nil, model.ErrInternalServer
	}
	return result, nil
}

// reachableInTx は取り込みトランザクション内での到達可能性チェックです。
func reachableInTx(ctx context.Context, tx *gorm.DB, depRepo repository.DependencyRepository, projectID, from, to string) (bool, error) {
	deps, err := depRepo.FindByProject(ctx, tx, projectID)
	if err != nil {
		return false, model.ErrInternalServer
	}
	adjacency := make(map[string][]string)
	for _, dep := range deps {
		if dep.DependencyType == model.DepRelated {
			continue
		}
		adjacency[dep.TaskID] = append(adjacency[dep.TaskID], dep.DependsOnID)
	}
	visited := make(map[string]bool)
	queue := []string{from}
	for len(queue) > 0 {
		if len(visited) > config.MaxGraphNodes {
			return false, model.ErrInternalServer
		}
		current := queue[0]
		queue = queue[1:]
		if current == to {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		queue = append(queue, adjacency[current]...)
	}
	return false, nil
}
