// internal/service/status_service_test.go
package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_statusService_GetOrCreateProgress(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")

	t.Run("正常系: 初回アクセスで open の行が作られる", func(t *testing.T) {
		progress, err := e.status.GetOrCreateProgress(ctx, project.ID, learnerID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOpen, progress.Status)
		assert.Equal(t, project.ID, progress.TaskID)
		assert.Equal(t, learnerID, progress.LearnerID)
		assert.Nil(t, progress.StartedAt)
	})

	t.Run("正常系: 2回目以降は同じ行が返る", func(t *testing.T) {
		first, err := e.status.GetOrCreateProgress(ctx, project.ID, learnerID)
		require.NoError(t, err)
		second, err := e.status.GetOrCreateProgress(ctx, project.ID, learnerID)
		require.NoError(t, err)
		assert.Equal(t, first.ProgressID, second.ProgressID)
	})

	t.Run("異常系: 存在しないタスク", func(t *testing.T) {
		_, err := e.status.GetOrCreateProgress(ctx, "proj-ffff.1", learnerID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func Test_statusService_GetOrCreateProgress_Concurrent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")

	t.Run("正常系: 同時アクセスでも進捗行は1行に収束する", func(t *testing.T) {
		const workers = 8
		results := make([]*model.LearnerTaskProgress, workers)
		errs := make([]error, workers)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = e.status.GetOrCreateProgress(ctx, epic.ID, learnerID)
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			require.NotNil(t, results[i])
			// 全員が同じ行を見ている
			assert.Equal(t, results[0].ProgressID, results[i].ProgressID)
		}

		var count int64
		err := e.db.Model(&model.LearnerTaskProgress{}).
			Where("task_id = ? AND learner_id = ?", epic.ID, learnerID).
			Count(&count).Error
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func Test_statusService_Transition_Matrix(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		from    model.TaskStatus
		to      model.TaskStatus
		allowed bool
	}{
		{model.StatusOpen, model.StatusInProgress, true},
		{model.StatusOpen, model.StatusBlocked, true},
		{model.StatusOpen, model.StatusClosed, false},
		{model.StatusInProgress, model.StatusOpen, true},
		{model.StatusInProgress, model.StatusBlocked, true},
		{model.StatusInProgress, model.StatusClosed, true},
		{model.StatusBlocked, model.StatusOpen, true},
		{model.StatusBlocked, model.StatusInProgress, true},
		{model.StatusBlocked, model.StatusClosed, false},
		{model.StatusClosed, model.StatusInProgress, false},
		{model.StatusClosed, model.StatusBlocked, false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s→%s", tt.from, tt.to)
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t)
			learnerID := uuid.New()
			project := e.mustCreateProject(t, "P")
			taskID := project.ID

			// 初期状態まで遷移させる
			switch tt.from {
			case model.StatusInProgress:
				_, err := e.status.Transition(ctx, taskID, learnerID, model.StatusInProgress, "")
				require.NoError(t, err)
			case model.StatusBlocked:
				_, err := e.status.Transition(ctx, taskID, learnerID, model.StatusBlocked, "")
				require.NoError(t, err)
			case model.StatusClosed:
				_, err := e.status.Transition(ctx, taskID, learnerID, model.StatusInProgress, "")
				require.NoError(t, err)
				_, err = e.status.Transition(ctx, taskID, learnerID, model.StatusClosed, "")
				require.NoError(t, err)
			}

			resp, err := e.status.Transition(ctx, taskID, learnerID, tt.to, "理由")
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.from, resp.OldStatus)
				assert.Equal(t, tt.to, resp.NewStatus)
			} else {
				assert.ErrorIs(t, err, model.ErrStatusTransition)
			}
		})
	}

	t.Run("異常系: 同じステータスへの遷移", func(t *testing.T) {
		e := newTestEngine(t)
		learnerID := uuid.New()
		project := e.mustCreateProject(t, "P")
		_, err := e.status.Transition(ctx, project.ID, learnerID, model.StatusInProgress, "")
		require.NoError(t, err)
		_, err = e.status.Transition(ctx, project.ID, learnerID, model.StatusInProgress, "")
		assert.ErrorIs(t, err, model.ErrStatusTransition)
	})
}

func Test_statusService_CloseTask_Preconditions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	sub1 := e.mustCreateChild(t, task.ID, model.TaskTypeSubtask, "練習A")
	sub2 := e.mustCreateChild(t, task.ID, model.TaskTypeSubtask, "練習B")

	t.Run("異常系: 子が開いたままの close は拒否され子の名前が出る", func(t *testing.T) {
		_, err := e.status.StartTask(ctx, task.ID, learnerID)
		require.NoError(t, err)
		_, err = e.status.CloseTask(ctx, task.ID, learnerID, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrStatusTransition)

		var appErr *model.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "CHILDREN_NOT_CLOSED", appErr.Detail.Code)
		assert.Contains(t, appErr.Detail.Message, "2 children still open")
		assert.Contains(t, appErr.Detail.Message, "練習A")
	})

	t.Run("異常系: 提出ゼロの subtask は閉じられない", func(t *testing.T) {
		_, err := e.status.StartTask(ctx, sub1.ID, learnerID)
		require.NoError(t, err)
		_, err = e.status.CloseTask(ctx, sub1.ID, learnerID, nil)
		assert.ErrorIs(t, err, model.ErrValidationRequired)
	})

	t.Run("異常系: 最新の提出が不合格なら閉じられない", func(t *testing.T) {
		// 合格→不合格の順に提出すると、最新の不合格が優先される
		res, err := e.submissions.Submit(ctx, sub1.ID, learnerID, &model.SubmitRequest{Content: "done"})
		require.NoError(t, err)
		require.True(t, res.Passed)
		res, err = e.submissions.Submit(ctx, sub1.ID, learnerID, &model.SubmitRequest{Content: "   "})
		require.NoError(t, err)
		require.False(t, res.Passed)

		_, err = e.status.CloseTask(ctx, sub1.ID, learnerID, nil)
		assert.ErrorIs(t, err, model.ErrValidationRequired)
	})

	t.Run("正常系: 合格提出で subtask が閉じられる", func(t *testing.T) {
		res, err := e.submissions.Submit(ctx, sub1.ID, learnerID, &model.SubmitRequest{Content: "retry"})
		require.NoError(t, err)
		require.True(t, res.Passed)

		resp, err := e.status.CloseTask(ctx, sub1.ID, learnerID, &model.CloseTaskRequest{Reason: "完了"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusClosed, resp.NewStatus)
	})

	t.Run("正常系: 全ての子が閉じれば親も閉じられる", func(t *testing.T) {
		e.mustCloseSubtask(t, sub2.ID, learnerID)

		_, err := e.status.CloseTask(ctx, task.ID, learnerID, nil)
		require.NoError(t, err)
	})

	t.Run("正常系: 親の close は学習者ごとに独立", func(t *testing.T) {
		other := uuid.New()
		_, err := e.status.StartTask(ctx, task.ID, other)
		require.NoError(t, err)
		_, err = e.status.CloseTask(ctx, task.ID, other, nil)
		// 別学習者はまだ子を閉じていない
		assert.ErrorIs(t, err, model.ErrStatusTransition)
	})
}

func Test_statusService_Reopen(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")

	_, err := e.status.StartTask(ctx, epic.ID, learnerID)
	require.NoError(t, err)
	_, err = e.status.CloseTask(ctx, epic.ID, learnerID, &model.CloseTaskRequest{Reason: "done"})
	require.NoError(t, err)

	t.Run("異常系: 理由なしの reopen は拒否", func(t *testing.T) {
		_, err := e.status.ReopenTask(ctx, epic.ID, learnerID, &model.ReopenTaskRequest{})
		assert.ErrorIs(t, err, model.ErrInvalidInput)
		_, err = e.status.ReopenTask(ctx, epic.ID, learnerID, nil)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("正常系: reopen で open に戻り完了時刻が消える", func(t *testing.T) {
		resp, err := e.status.ReopenTask(ctx, epic.ID, learnerID, &model.ReopenTaskRequest{Reason: "やり直し"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusClosed, resp.OldStatus)
		assert.Equal(t, model.StatusOpen, resp.NewStatus)

		progress, err := e.status.GetOrCreateProgress(ctx, epic.ID, learnerID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOpen, progress.Status)
		assert.Nil(t, progress.CompletedAt)
		// started_at は初回開始時刻のまま残る
		assert.NotNil(t, progress.StartedAt)
	})

	t.Run("正常系: reopen しても提出履歴は残り試行番号は巻き戻らない", func(t *testing.T) {
		sub := e.mustCreateChild(t, e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "T").ID, model.TaskTypeSubtask, "S")
		for i := 1; i <= 2; i++ {
			res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{Content: "answer"})
			require.NoError(t, err)
			assert.Equal(t, i, res.AttemptNumber)
		}
		_, err := e.status.StartTask(ctx, sub.ID, learnerID)
		require.NoError(t, err)
		_, err = e.status.CloseTask(ctx, sub.ID, learnerID, nil)
		require.NoError(t, err)
		_, err = e.status.ReopenTask(ctx, sub.ID, learnerID, &model.ReopenTaskRequest{Reason: "復習"})
		require.NoError(t, err)

		res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{Content: "again"})
		require.NoError(t, err)
		assert.Equal(t, 3, res.AttemptNumber)

		history, err := e.submissions.ListSubmissions(ctx, sub.ID, learnerID)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})
}
