// internal/service/learner_service_test.go
package service

import (
	"context"
	"testing"

	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_learnerService_RegisterAndLogin(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := &model.RegisterRequest{
		Name:     "テスト学習者",
		Email:    "learner@example.com",
		Password: "password123",
	}

	t.Run("正常系: 登録してログインできる", func(t *testing.T) {
		learner, err := e.learners.Register(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, req.Email, learner.Email)
		assert.True(t, learner.IsActive)
		assert.NotEqual(t, uuid.Nil, learner.LearnerID)

		resp, err := e.learners.Login(ctx, &model.LoginRequest{
			Email:    req.Email,
			Password: req.Password,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
	})

	t.Run("異常系: メールアドレス重複", func(t *testing.T) {
		_, err := e.learners.Register(ctx, req)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"異常系: パスワード誤り", req.Email, "wrong-password"},
		{"異常系: 未登録メール", "nobody@example.com", req.Password},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.learners.Login(ctx, &model.LoginRequest{Email: tt.email, Password: tt.password})
			require.Error(t, err)
			// 存在有無を区別させないため同じエラーを返す
			assert.ErrorIs(t, err, model.ErrForbidden)
		})
	}
}

func Test_learnerService_DeleteLearner(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	registered, err := e.learners.Register(ctx, &model.RegisterRequest{
		Name:     "削除対象",
		Email:    "delete-me@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	learnerID := registered.LearnerID

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")
	task := e.mustCreateChild(t, epic.ID, model.TaskTypeTask, "チャネル基礎")
	sub := e.mustCreateChild(t, task.ID, model.TaskTypeSubtask, "練習")

	// インスタンス層のデータを一式作る
	e.mustCloseSubtask(t, sub.ID, learnerID)
	_, err = e.summaries.Summarize(ctx, sub.ID, learnerID)
	require.NoError(t, err)
	_, err = e.comments.PostComment(ctx, sub.ID, learnerID, &model.PostCommentRequest{
		Text:       "自分用メモ",
		Visibility: model.CommentVisibilityPrivate,
	})
	require.NoError(t, err)
	sharedComment, err := e.comments.PostComment(ctx, sub.ID, learnerID, &model.PostCommentRequest{
		Text:   "共有メモ",
		Author: "講師",
	})
	require.NoError(t, err)

	t.Run("正常系: 学習者とインスタンス層データが消える", func(t *testing.T) {
		require.NoError(t, e.learners.DeleteLearner(ctx, learnerID))

		_, err := e.learners.GetLearner(ctx, learnerID)
		assert.ErrorIs(t, err, model.ErrNotFound)

		var count int64
		require.NoError(t, e.db.Model(&model.LearnerTaskProgress{}).Where("learner_id = ?", learnerID).Count(&count).Error)
		assert.EqualValues(t, 0, count)
		require.NoError(t, e.db.Model(&model.Submission{}).Where("learner_id = ?", learnerID).Count(&count).Error)
		assert.EqualValues(t, 0, count)
		require.NoError(t, e.db.Model(&model.StatusSummary{}).Where("learner_id = ?", learnerID).Count(&count).Error)
		assert.EqualValues(t, 0, count)
	})

	t.Run("正常系: テンプレート層と共有コメントは残る", func(t *testing.T) {
		detail, err := e.tasks.GetTask(ctx, sub.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, "練習", detail.Task.Title)

		list, err := e.comments.ListComments(ctx, sub.ID, uuid.New())
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, sharedComment.CommentID, list[0].CommentID)
	})

	t.Run("異常系: 存在しない学習者の削除", func(t *testing.T) {
		assert.ErrorIs(t, e.learners.DeleteLearner(ctx, uuid.New()), model.ErrNotFound)
	})
}
