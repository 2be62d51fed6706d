package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GraphService interface {
	AddDependency(ctx context.Context, req *model.AddDependencyRequest) error
	RemoveDependency(ctx context.Context, req *model.RemoveDependencyRequest) error
	GetReadyTasks(ctx context.Context, projectID string, learnerID uuid.UUID, taskType model.TaskType, limit int) ([]*model.TaskSummary, error)
	GetBlockingTasks(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.TaskSummary, error)
	WouldCreateCycle(ctx context.Context, taskID, dependsOnID string) (bool, error)
	DetectCycles(ctx context.Context, projectID string) (*model.CycleReport, error)
}

type graphService struct {
	db        *gorm.DB
	taskRepo  repository.TaskRepository
	depRepo   repository.DependencyRepository
	progRepo  repository.ProgressRepository
	eventRepo repository.EventRepository
}

func NewGraphService(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	depRepo repository.DependencyRepository,
	progRepo repository.ProgressRepository,
	eventRepo repository.EventRepository,
) GraphService {
	return &graphService{
		db:        db,
		taskRepo:  taskRepo,
		depRepo:   depRepo,
		progRepo:  progRepo,
		eventRepo: eventRepo,
	}
}

// AddDependency は blocks / related エッジを追加します。
// blocks はサイクル事前チェックに通った場合のみ挿入されます。
func (s *graphService) AddDependency(ctx context.Context, req *model.AddDependencyRequest) error {
	if req.TaskID == req.DependsOnID {
		return model.NewAppError("DEPENDENCY_CYCLE", "自分自身への依存は追加できません", "depends_on_id", model.ErrCycle)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.taskRepo.FindByID(ctx, tx, req.TaskID)
		if err != nil {
			return err
		}
		dependsOn, err := s.taskRepo.FindByID(ctx, tx, req.DependsOnID)
		if err != nil {
			return err
		}
		if task.ProjectID != dependsOn.ProjectID {
			return model.NewAppError("INVALID_INPUT", "別プロジェクトのタスクへは依存できません", "depends_on_id", model.ErrInvalidInput)
		}

		// エッジ追加とサイクル判定はプロジェクト単位で直列化する
		if err := s.taskRepo.LockProject(ctx, tx, task.ProjectID); err != nil {
			return model.ErrInternalServer
		}

		exists, err := s.depRepo.Exists(ctx, tx, req.TaskID, req.DependsOnID, req.DependencyType)
		if err != nil {
			return model.ErrInternalServer
		}
		if exists {
			return model.NewAppError("CONFLICT", "この依存関係は既に存在します", "depends_on_id", model.ErrConflict)
		}

		// related は到達可能性に影響しないためサイクルチェック不要
		if req.DependencyType == model.DepBlocks {
			cyclic, err := s.reachable(ctx, tx, task.ProjectID, req.DependsOnID, req.TaskID)
			if err != nil {
				return err
			}
			if cyclic {
				return model.NewAppError("DEPENDENCY_CYCLE", "依存関係が循環します", "depends_on_id", model.ErrCycle)
			}
		}

		dep := &model.Dependency{
			TaskID:         req.TaskID,
			DependsOnID:    req.DependsOnID,
			DependencyType: req.DependencyType,
		}
		if err := s.depRepo.Create(ctx, tx, dep); err != nil {
			if errors.Is(err, model.ErrConflict) {
				return model.NewAppError("CONFLICT", "この依存関係は既に存在します", "depends_on_id", model.ErrConflict)
			}
			return model.ErrInternalServer
		}

		return s.appendDependencyEvent(ctx, tx, model.EventDependencyAdded, dep)
	})

	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) || isDomainError(err) {
			return err
		}
		log.Printf("Transaction failed for AddDependency: %v", err)
		return model.ErrInternalServer
	}
	return nil
}

func (s *graphService) RemoveDependency(ctx context.Context, req *model.RemoveDependencyRequest) error {
	// 親子エッジは階層操作 (move) でのみ張り替える
	if req.DependencyType == model.DepParentChild {
		return model.NewAppError("INVALID_INPUT", "親子エッジは直接削除できません", "dependency_type", model.ErrInvalidInput)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.depRepo.Delete(ctx, tx, req.TaskID, req.DependsOnID, req.DependencyType); err != nil {
			return err
		}
		dep := &model.Dependency{
			TaskID:         req.TaskID,
			DependsOnID:    req.DependsOnID,
			DependencyType: req.DependencyType,
		}
		return s.appendDependencyEvent(ctx, tx, model.EventDependencyRemoved, dep)
	})

	if err != nil {
		if isDomainError(err) {
			return err
		}
		log.Printf("Transaction failed for RemoveDependency: %v", err)
		return model.ErrInternalServer
	}
	return nil
}

// reachable は from から to へ blocks / parent_child エッジ経由で到達できるかを調べます。
// 反復worklist + visited集合で実装し、ノード数上限で打ち切ります。
func (s *graphService) reachable(ctx context.Context, db *gorm.DB, projectID, from, to string) (bool, error) {
	return reachableInTx(ctx, db, s.depRepo, projectID, from, to)
}

func (s *graphService) WouldCreateCycle(ctx context.Context, taskID, dependsOnID string) (bool, error) {
	if taskID == dependsOnID {
		return true, nil
	}
	task, err := s.taskRepo.FindByID(ctx, s.db, taskID)
	if err != nil {
		return false, err
	}
	if _, err := s.taskRepo.FindByID(ctx, s.db, dependsOnID); err != nil {
		return false, err
	}
	return s.reachable(ctx, s.db, task.ProjectID, dependsOnID, taskID)
}

// GetReadyTasks は学習者が今すぐ着手できるタスクを返します。
//
// ブロック判定は2段階:
//  1. blocks エッジの先のタスクが closed でなければ直接ブロック (進捗行が無い場合は open 扱い)。
//  2. ブロックされたタスクの子孫は階層を通じて全てブロックされる。
//
// 結果は in_progress 優先、優先度昇順、浅い階層優先、作成順で安定に並べます。
func (s *graphService) GetReadyTasks(ctx context.Context, projectID string, learnerID uuid.UUID, taskType model.TaskType, limit int) ([]*model.TaskSummary, error) {
	tasks, err := s.taskRepo.FindByProject(ctx, s.db, projectID)
	if err != nil {
		return nil, model.ErrInternalServer
	}
	if len(tasks) == 0 {
		return nil, model.ErrNotFound
	}
	deps, err := s.depRepo.FindByProject(ctx, s.db, projectID)
	if err != nil {
		return nil, model.ErrInternalServer
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	progressByTask, err := s.progRepo.FindByTasksForLearner(ctx, s.db, ids, learnerID)
	if err != nil {
		return nil, model.ErrInternalServer
	}

	statusOf := func(taskID string) model.TaskStatus {
		if p, ok := progressByTask[taskID]; ok {
			return p.Status
		}
		return model.StatusOpen
	}

	// 第1段: blocks エッジによる直接ブロック
	blocked := make(map[string]bool)
	for _, dep := range deps {
		if dep.DependencyType != model.DepBlocks {
			continue
		}
		if statusOf(dep.DependsOnID) != model.StatusClosed {
			blocked[dep.TaskID] = true
		}
	}

	// 第2段: 親子階層を通じた下方伝播
	children := buildChildrenMap(tasks)
	queue := make([]string, 0, len(blocked))
	for id := range blocked {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if blocked[child.ID] {
				continue
			}
			blocked[child.ID] = true
			queue = append(queue, child.ID)
		}
	}

	ready := make([]*model.TaskSummary, 0)
	for _, t := range tasks {
		status := statusOf(t.ID)
		if status != model.StatusOpen && status != model.StatusInProgress {
			continue
		}
		if blocked[t.ID] {
			continue
		}
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		ready = append(ready, &model.TaskSummary{
			ID:       t.ID,
			Title:    t.Title,
			TaskType: t.TaskType,
			Priority: t.Priority,
			Status:   status,
			Depth:    t.Depth(),
		})
	}

	// FindByProject が created_at 昇順で返すため、安定ソートで作成順がタイブレークになる
	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.Status != b.Status {
			return a.Status == model.StatusInProgress
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Depth < b.Depth
	})

	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

// GetBlockingTasks は直接の未完了ブロッカーを返します (伝播分は含みません)。
func (s *graphService) GetBlockingTasks(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.TaskSummary, error) {
	if _, err := s.taskRepo.FindByID(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	outgoing, err := s.depRepo.FindOutgoing(ctx, s.db, taskID)
	if err != nil {
		return nil, model.ErrInternalServer
	}

	blockers := make([]*model.TaskSummary, 0)
	for _, dep := range outgoing {
		if dep.DependencyType != model.DepBlocks {
			continue
		}
		target, err := s.taskRepo.FindByID(ctx, s.db, dep.DependsOnID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, model.ErrInternalServer
		}
		progress, err := s.progRepo.Find(ctx, s.db, target.ID, learnerID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInternalServer
		}
		status := model.StatusOpen
		if progress != nil {
			status = progress.Status
		}
		if status == model.StatusClosed {
			continue
		}
		blockers = append(blockers, &model.TaskSummary{
			ID:       target.ID,
			Title:    target.Title,
			TaskType: target.TaskType,
			Priority: target.Priority,
			Status:   status,
			Depth:    target.Depth(),
		})
	}
	return blockers, nil
}

// DetectCycles はプロジェクト全体の blocks / parent_child グラフを診断します。
// まずトポロジカルソートで非巡回かを確認し、巡回がある場合のみ
// 強連結成分 (反復版Tarjan) で参加ノードを特定します。書込時の事前チェックが
// 正常に働いていれば常に acyclic のはずで、これは修復ツール向けの機能です。
func (s *graphService) DetectCycles(ctx context.Context, projectID string) (*model.CycleReport, error) {
	if _, err := s.taskRepo.FindByID(ctx, s.db, projectID); err != nil {
		return nil, err
	}
	deps, err := s.depRepo.FindByProject(ctx, s.db, projectID)
	if err != nil {
		return nil, model.ErrInternalServer
	}

	var edges []toposort.Edge
	adjacency := make(map[string][]string)
	nodes := make(map[string]bool)
	for _, dep := range deps {
		if dep.DependencyType == model.DepRelated {
			continue
		}
		edges = append(edges, toposort.Edge{dep.DependsOnID, dep.TaskID})
		adjacency[dep.TaskID] = append(adjacency[dep.TaskID], dep.DependsOnID)
		nodes[dep.TaskID] = true
		nodes[dep.DependsOnID] = true
	}

	report := &model.CycleReport{ProjectID: projectID, Cycles: []model.Cycle{}}
	if _, err := toposort.Toposort(edges); err == nil {
		report.Acyclic = true
		return report, nil
	}

	for _, scc := range stronglyConnectedComponents(nodes, adjacency) {
		if len(scc) > 1 {
			sort.Strings(scc)
			report.Cycles = append(report.Cycles, model.Cycle{TaskIDs: scc})
		}
	}
	report.Acyclic = len(report.Cycles) == 0
	return report, nil
}

// stronglyConnectedComponents は反復版Tarjanです。再帰は使いません。
func stronglyConnectedComponents(nodes map[string]bool, adjacency map[string][]string) [][]string {
	index := 0
	indices := make(map[string]int, len(nodes))
	lowlinks := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	var stack []string
	var sccs [][]string

	type frame struct {
		node string
		next int
	}

	ordered := make([]string, 0, len(nodes))
	for node := range nodes {
		ordered = append(ordered, node)
	}
	sort.Strings(ordered)

	for _, start := range ordered {
		if _, seen := indices[start]; seen {
			continue
		}
		callStack := []frame{{node: start}}
		indices[start] = index
		lowlinks[start] = index
		index++
		stack = append(stack, start)
		onStack[start] = true

		for len(callStack) > 0 {
			top := &callStack[len(callStack)-1]
			if top.next < len(adjacency[top.node]) {
				succ := adjacency[top.node][top.next]
				top.next++
				if _, seen := indices[succ]; !seen {
					indices[succ] = index
					lowlinks[succ] = index
					index++
					stack = append(stack, succ)
					onStack[succ] = true
					callStack = append(callStack, frame{node: succ})
				} else if onStack[succ] {
					if indices[succ] < lowlinks[top.node] {
						lowlinks[top.node] = indices[succ]
					}
				}
				continue
			}

			// 全後続ノード処理済み
			finished := top.node
			callStack = callStack[:len(callStack)-1]
			if len(callStack) > 0 {
				parent := &callStack[len(callStack)-1]
				if lowlinks[finished] < lowlinks[parent.node] {
					lowlinks[parent.node] = lowlinks[finished]
				}
			}
			if lowlinks[finished] == indices[finished] {
				var scc []string
				for {
					n := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[n] = false
					scc = append(scc, n)
					if n == finished {
						break
					}
				}
				sccs = append(sccs, scc)
			}
		}
	}
	return sccs
}

func (s *graphService) appendDependencyEvent(ctx context.Context, tx *gorm.DB, action string, dep *model.Dependency) error {
	payload, _ := json.Marshal(dep)
	event := &model.Event{
		EntityType: model.EntityDependency,
		EntityID:   dep.TaskID,
		Action:     action,
		Actor:      "admin",
		NewValue:   dep.DependsOnID,
		Payload:    payload,
	}
	if err := s.eventRepo.Append(ctx, tx, event); err != nil {
		log.Printf("Error appending dependency event: %v", err)
		return model.ErrInternalServer
	}
	return nil
}
