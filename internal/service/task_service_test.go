// internal/service/task_service_test.go
package service

import (
	"context"
	"testing"

	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_taskService_CreateTask_Hierarchy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	subtask := e.mustCreateChild(t, task.ID, model.TaskTypeSubtask, "バッファ付きチャネル")

	t.Run("正常系: 階層IDが親IDの接頭辞になる", func(t *testing.T) {
		assert.Equal(t, project.ID, project.ProjectID)
		assert.Equal(t, project.ID+".1", epic.ID)
		assert.Equal(t, epic.ID+".1", task.ID)
		assert.Equal(t, task.ID+".1", subtask.ID)
		assert.Equal(t, project.ID, subtask.ProjectID)
	})

	t.Run("正常系: subtask は subtask の下にも置ける", func(t *testing.T) {
		nested := e.mustCreateChild(t, subtask.ID, model.TaskTypeSubtask, "select文")
		assert.Equal(t, subtask.ID+".1", nested.ID)
		assert.Equal(t, 4, nested.Depth())
	})

	t.Run("正常系: 兄弟は連番で払い出される", func(t *testing.T) {
		second := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "テスト技法")
		assert.Equal(t, project.ID+".2", second.ID)
	})

	tests := []struct {
		name     string
		parentID *string
		taskType model.TaskType
		wantErr  error
	}{
		{
			name:     "異常系: project に親は指定できない",
			parentID: &epic.ID,
			taskType: model.TaskTypeProject,
			wantErr:  model.ErrHierarchy,
		},
		{
			name:     "異常系: epic は project 直下のみ",
			parentID: &task.ID,
			taskType: model.TaskTypeEpic,
			wantErr:  model.ErrHierarchy,
		},
		{
			name:     "異常系: task は epic 直下のみ",
			parentID: &project.ID,
			taskType: model.TaskTypeTask,
			wantErr:  model.ErrHierarchy,
		},
		{
			name:     "異常系: subtask は project 直下に置けない",
			parentID: &project.ID,
			taskType: model.TaskTypeSubtask,
			wantErr:  model.ErrHierarchy,
		},
		{
			name:     "異常系: 親ID必須",
			parentID: nil,
			taskType: model.TaskTypeTask,
			wantErr:  model.ErrHierarchy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tasks.CreateTask(ctx, &model.CreateTaskRequest{
				ParentID: tt.parentID,
				Title:    "invalid",
				TaskType: tt.taskType,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("異常系: 存在しない親", func(t *testing.T) {
		missing := "proj-ffff"
		_, err := e.tasks.CreateTask(ctx, &model.CreateTaskRequest{
			ParentID: &missing,
			Title:    "orphan",
			TaskType: model.TaskTypeEpic,
		})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func Test_taskService_GetTask(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	blocker := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "goroutine基礎")

	require.NoError(t, e.graph.AddDependency(ctx, &model.AddDependencyRequest{
		TaskID:         task.ID,
		DependsOnID:    blocker.ID,
		DependencyType: model.DepBlocks,
	}))

	t.Run("正常系: 祖先はルートが先頭", func(t *testing.T) {
		detail, err := e.tasks.GetTask(ctx, task.ID, learnerID)
		require.NoError(t, err)
		require.Len(t, detail.Ancestors, 2)
		assert.Equal(t, project.ID, detail.Ancestors[0].ID)
		assert.Equal(t, epic.ID, detail.Ancestors[1].ID)
		assert.Equal(t, model.StatusOpen, detail.Status)
		assert.EqualValues(t, 0, detail.AttemptCount)
	})

	t.Run("正常系: 未完了ブロッカーが blocked_by に載る", func(t *testing.T) {
		detail, err := e.tasks.GetTask(ctx, task.ID, learnerID)
		require.NoError(t, err)
		require.Len(t, detail.BlockedBy, 1)
		assert.Equal(t, blocker.ID, detail.BlockedBy[0].ID)
	})

	t.Run("正常系: 完了したブロッカーは blocked_by から消える", func(t *testing.T) {
		_, err := e.status.StartTask(ctx, blocker.ID, learnerID)
		require.NoError(t, err)
		_, err = e.status.CloseTask(ctx, blocker.ID, learnerID, nil)
		require.NoError(t, err)

		detail, err := e.tasks.GetTask(ctx, task.ID, learnerID)
		require.NoError(t, err)
		assert.Empty(t, detail.BlockedBy)
	})

	t.Run("正常系: 進捗は学習者ごとに独立", func(t *testing.T) {
		other := uuid.New()
		detail, err := e.tasks.GetTask(ctx, blocker.ID, other)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOpen, detail.Status)

		detail, err = e.tasks.GetTask(ctx, blocker.ID, learnerID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusClosed, detail.Status)
	})

	t.Run("異常系: 存在しないタスク", func(t *testing.T) {
		_, err := e.tasks.GetTask(ctx, "proj-ffff.9", learnerID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func Test_taskService_PatchTask(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")

	t.Run("正常系: タイトルと優先度の更新", func(t *testing.T) {
		title := "並行処理入門"
		priority := 0
		updated, err := e.tasks.PatchTask(ctx, epic.ID, &model.PatchTaskRequest{
			Title:    &title,
			Priority: &priority,
		})
		require.NoError(t, err)
		assert.Equal(t, "並行処理入門", updated.Title)
		assert.Equal(t, 0, updated.Priority)
		assert.Equal(t, epic.ID, updated.ID)
	})

	t.Run("異常系: 優先度が範囲外", func(t *testing.T) {
		priority := 9
		_, err := e.tasks.PatchTask(ctx, epic.ID, &model.PatchTaskRequest{Priority: &priority})
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("異常系: 存在しないタスク", func(t *testing.T) {
		title := "x"
		_, err := e.tasks.PatchTask(ctx, "proj-ffff.1", &model.PatchTaskRequest{Title: &title})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func Test_taskService_MoveTask(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	taskA := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	subA := e.mustCreateChild(t, taskA.ID, model.TaskTypeSubtask, "練習1")
	subB := e.mustCreateChild(t, subA.ID, model.TaskTypeSubtask, "練習1-1")
	taskB := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "goroutine基礎")

	t.Run("正常系: IDを保ったまま親が変わる", func(t *testing.T) {
		moved, err := e.tasks.MoveTask(ctx, subA.ID, &model.MoveTaskRequest{NewParentID: taskB.ID})
		require.NoError(t, err)
		assert.Equal(t, subA.ID, moved.ID) // IDは不変
		require.NotNil(t, moved.ParentID)
		assert.Equal(t, taskB.ID, *moved.ParentID)
	})

	t.Run("正常系: 移動後も子孫は親リンクに従う", func(t *testing.T) {
		detail, err := e.tasks.GetTask(ctx, subB.ID, uuid.New())
		require.NoError(t, err)
		// subB の祖先チェーンは taskB 経由になっている
		var ids []string
		for _, a := range detail.Ancestors {
			ids = append(ids, a.ID)
		}
		assert.Contains(t, ids, taskB.ID)
		assert.NotContains(t, ids, taskA.ID)
	})

	t.Run("異常系: 自分の子孫の下への移動は循環", func(t *testing.T) {
		_, err := e.tasks.MoveTask(ctx, subA.ID, &model.MoveTaskRequest{NewParentID: subB.ID})
		assert.ErrorIs(t, err, model.ErrCycle)
	})

	t.Run("異常系: 自分自身の下には移動できない", func(t *testing.T) {
		_, err := e.tasks.MoveTask(ctx, subA.ID, &model.MoveTaskRequest{NewParentID: subA.ID})
		assert.ErrorIs(t, err, model.ErrCycle)
	})

	t.Run("異常系: blocks エッジ経由で循環する移動は拒否される", func(t *testing.T) {
		// epic2 は taskA の完了に依存している。taskA を epic2 の下へ
		// 移動すると親子エッジ経由で taskA → epic2 → taskA の循環になる。
		epic2 := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "分散システム")
		err := e.graph.AddDependency(ctx, &model.AddDependencyRequest{
			TaskID:         epic2.ID,
			DependsOnID:    taskA.ID,
			DependencyType: model.DepBlocks,
		})
		require.NoError(t, err)

		_, err = e.tasks.MoveTask(ctx, taskA.ID, &model.MoveTaskRequest{NewParentID: epic2.ID})
		assert.ErrorIs(t, err, model.ErrCycle)

		report, err := e.graph.DetectCycles(ctx, project.ID)
		require.NoError(t, err)
		assert.True(t, report.Acyclic)
	})

	t.Run("異常系: プロジェクトルートは移動できない", func(t *testing.T) {
		_, err := e.tasks.MoveTask(ctx, project.ID, &model.MoveTaskRequest{NewParentID: epic.ID})
		assert.ErrorIs(t, err, model.ErrHierarchy)
	})

	t.Run("異常系: 別プロジェクトへは移動できない", func(t *testing.T) {
		other := e.mustCreateProject(t, "別プロジェクト")
		otherEpic := e.mustCreateChild(t, other.ID, model.TaskTypeEpic, "別エピック")
		_, err := e.tasks.MoveTask(ctx, taskA.ID, &model.MoveTaskRequest{NewParentID: otherEpic.ID})
		assert.ErrorIs(t, err, model.ErrHierarchy)
	})

	t.Run("異常系: 種別の合わない親への移動", func(t *testing.T) {
		_, err := e.tasks.MoveTask(ctx, epic.ID, &model.MoveTaskRequest{NewParentID: taskB.ID})
		assert.ErrorIs(t, err, model.ErrHierarchy)
	})
}

func Test_taskService_DeleteTask(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	taskA := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	taskB := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "goroutine基礎")

	t.Run("異常系: 子タスクが残っている間は削除できない", func(t *testing.T) {
		err := e.tasks.DeleteTask(ctx, epic.ID)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("異常系: 依存されているタスクは削除できない", func(t *testing.T) {
		require.NoError(t, e.graph.AddDependency(ctx, &model.AddDependencyRequest{
			TaskID:         taskB.ID,
			DependsOnID:    taskA.ID,
			DependencyType: model.DepBlocks,
		}))
		err := e.tasks.DeleteTask(ctx, taskA.ID)
		assert.ErrorIs(t, err, model.ErrConflict)

		require.NoError(t, e.graph.RemoveDependency(ctx, &model.RemoveDependencyRequest{
			TaskID:         taskB.ID,
			DependsOnID:    taskA.ID,
			DependencyType: model.DepBlocks,
		}))
	})

	t.Run("異常系: 学習者の進捗があるタスクは削除できない", func(t *testing.T) {
		_, err := e.status.StartTask(ctx, taskB.ID, learnerID)
		require.NoError(t, err)
		err = e.tasks.DeleteTask(ctx, taskB.ID)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("正常系: 末端タスクの削除でエッジも取り除かれる", func(t *testing.T) {
		require.NoError(t, e.tasks.DeleteTask(ctx, taskA.ID))

		_, err := e.tasks.GetTask(ctx, taskA.ID, learnerID)
		assert.ErrorIs(t, err, model.ErrNotFound)

		// 親子エッジを含め、このタスクを参照するエッジは残らない
		var count int64
		require.NoError(t, e.db.Model(&model.Dependency{}).
			Where("task_id = ? OR depends_on_id = ?", taskA.ID, taskA.ID).
			Count(&count).Error)
		assert.EqualValues(t, 0, count)
	})

	t.Run("異常系: 存在しないタスク", func(t *testing.T) {
		err := e.tasks.DeleteTask(ctx, "proj-ffff.1")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func Test_taskService_ListProjectTasks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")

	t.Run("正常系: 進捗行が無ければ open 扱い", func(t *testing.T) {
		summaries, err := e.tasks.ListProjectTasks(ctx, project.ID, learnerID)
		require.NoError(t, err)
		require.Len(t, summaries, 3)
		for _, s := range summaries {
			assert.Equal(t, model.StatusOpen, s.Status)
		}
	})

	t.Run("正常系: 学習者の進捗が反映される", func(t *testing.T) {
		_, err := e.status.StartTask(ctx, epic.ID, learnerID)
		require.NoError(t, err)
		summaries, err := e.tasks.ListProjectTasks(ctx, project.ID, learnerID)
		require.NoError(t, err)
		var found bool
		for _, s := range summaries {
			if s.ID == epic.ID {
				found = true
				assert.Equal(t, model.StatusInProgress, s.Status)
			}
		}
		assert.True(t, found)
	})

	t.Run("異常系: 存在しないプロジェクト", func(t *testing.T) {
		_, err := e.tasks.ListProjectTasks(ctx, "proj-ffff", learnerID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
