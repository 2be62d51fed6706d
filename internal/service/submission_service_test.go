// internal/service/submission_service_test.go
package service

import (
	"context"
	"strings"
	"testing"

	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_submissionService_Submit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	sub := e.mustCreateChild(t, task.ID, model.TaskTypeSubtask, "練習")

	tests := []struct {
		name        string
		content     string
		wantPassed  bool
		wantMessage string
	}{
		{
			name:       "正常系: 中身のある提出は合格",
			content:    "チャネルで実装した",
			wantPassed: true,
		},
		{
			name:        "正常系: 空の提出は不合格で記録される",
			content:     "",
			wantPassed:  false,
			wantMessage: "Submission is empty",
		},
		{
			name:        "正常系: 空白のみの提出も不合格",
			content:     " \t\n ",
			wantPassed:  false,
			wantMessage: "Submission is empty",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, res.Passed)
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.Equal(t, i+1, res.AttemptNumber) // 不合格でも試行番号は進む
		})
	}

	t.Run("異常系: closed のタスクへは提出できない", func(t *testing.T) {
		res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{Content: "pass again"})
		require.NoError(t, err)
		require.True(t, res.Passed)
		_, err = e.status.StartTask(ctx, sub.ID, learnerID)
		require.NoError(t, err)
		_, err = e.status.CloseTask(ctx, sub.ID, learnerID, nil)
		require.NoError(t, err)

		_, err = e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{Content: "too late"})
		assert.ErrorIs(t, err, model.ErrStatusTransition)
	})

	t.Run("異常系: 存在しないタスク", func(t *testing.T) {
		_, err := e.submissions.Submit(ctx, "proj-ffff.1", learnerID, &model.SubmitRequest{Content: "x"})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("正常系: 学習者ごとに試行番号は独立", func(t *testing.T) {
		other := uuid.New()
		res, err := e.submissions.Submit(ctx, sub.ID, other, &model.SubmitRequest{Content: "first try"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.AttemptNumber)
	})
}

// 受入基準の件数で合否を決めるテスト用の検証器
type criteriaCountValidator struct{}

func (v *criteriaCountValidator) Validate(content string, criteria []string) (bool, string) {
	if len(criteria) == 0 {
		return false, "no acceptance criteria"
	}
	return strings.Contains(content, "ok"), ""
}

func Test_submissionService_RegisterValidator(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "P")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "E")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "T")
	sub, err := e.tasks.CreateTask(ctx, &model.CreateTaskRequest{
		ParentID:           &task.ID,
		Title:              "S",
		TaskType:           model.TaskTypeSubtask,
		AcceptanceCriteria: []string{"テストを書く"},
	})
	require.NoError(t, err)

	e.submissions.RegisterValidator("quiz", &criteriaCountValidator{})

	t.Run("正常系: submission_type で検証器が切り替わる", func(t *testing.T) {
		res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{
			Content:        "ok: done",
			SubmissionType: "quiz",
		})
		require.NoError(t, err)
		assert.True(t, res.Passed)

		res, err = e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{
			Content:        "incomplete",
			SubmissionType: "quiz",
		})
		require.NoError(t, err)
		assert.False(t, res.Passed)
	})

	t.Run("正常系: 未登録タイプはテキスト検証にフォールバック", func(t *testing.T) {
		res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{
			Content:        "anything",
			SubmissionType: "unknown",
		})
		require.NoError(t, err)
		assert.True(t, res.Passed)
	})
}

func Test_submissionService_Revalidate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	learnerID := uuid.New()

	project := e.mustCreateProject(t, "P")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "E")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "T")
	sub := e.mustCreateChild(t, task.ID, model.TaskTypeSubtask, "S")

	res, err := e.submissions.Submit(ctx, sub.ID, learnerID, &model.SubmitRequest{Content: "answer"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ValidationCount)

	t.Run("正常系: 同じ提出に新しい検証行が追記される", func(t *testing.T) {
		again, err := e.submissions.Revalidate(ctx, res.SubmissionID, learnerID)
		require.NoError(t, err)
		assert.Equal(t, res.SubmissionID, again.SubmissionID)
		assert.Equal(t, res.AttemptNumber, again.AttemptNumber)
		assert.True(t, again.Passed)
		// 初回検証 + 再検証で2件
		assert.Equal(t, 2, again.ValidationCount)
	})

	t.Run("異常系: 他学習者の提出は再検証できない", func(t *testing.T) {
		_, err := e.submissions.Revalidate(ctx, res.SubmissionID, uuid.New())
		assert.ErrorIs(t, err, model.ErrForbidden)
	})

	t.Run("異常系: 存在しない提出", func(t *testing.T) {
		_, err := e.submissions.Revalidate(ctx, uuid.New(), learnerID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
