// internal/service/comment_service_test.go
package service

import (
	"context"
	"testing"

	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_commentService_Visibility(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	project := e.mustCreateProject(t, "Goカリキュラム")
	epic := e.mustCreateChild(t, project.ID, model.TaskTypeEpic, "並行処理")

	shared, err := e.comments.PostComment(ctx, epic.ID, alice, &model.PostCommentRequest{
		Text:   "参考リンクを貼っておく",
		Author: "講師",
	})
	require.NoError(t, err)

	private, err := e.comments.PostComment(ctx, epic.ID, alice, &model.PostCommentRequest{
		Text:       "自分用メモ",
		Visibility: model.CommentVisibilityPrivate,
	})
	require.NoError(t, err)

	t.Run("正常系: visibility が正しくタグ付けされる", func(t *testing.T) {
		assert.Equal(t, model.CommentVisibilityShared, shared.Visibility)
		assert.Equal(t, model.CommentVisibilityPrivate, private.Visibility)
		assert.Equal(t, "講師", shared.Author)
		// author 省略時は学習者ID
		assert.Equal(t, alice.String(), private.Author)
	})

	t.Run("正常系: 投稿者には共有+自分のプライベートが見える", func(t *testing.T) {
		list, err := e.comments.ListComments(ctx, epic.ID, alice)
		require.NoError(t, err)
		require.Len(t, list, 2)
	})

	t.Run("正常系: 他学習者にはプライベートが見えない", func(t *testing.T) {
		list, err := e.comments.ListComments(ctx, epic.ID, bob)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, shared.CommentID, list[0].CommentID)
	})

	t.Run("異常系: 存在しないタスクへの投稿", func(t *testing.T) {
		_, err := e.comments.PostComment(ctx, "proj-ffff.1", alice, &model.PostCommentRequest{Text: "x"})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
