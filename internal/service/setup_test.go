// internal/service/setup_test.go
package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB はテストごとに独立したインメモリDBを作ります。
// cache=shared + 接続1本でトランザクションと通常クエリが同じDBを見るようにします。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // UNIQUE違反を gorm.ErrDuplicatedKey に正規化する
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// testEngine は実リポジトリを束ねたサービス一式です。
type testEngine struct {
	db          *gorm.DB
	tasks       TaskService
	graph       GraphService
	status      StatusService
	submissions SubmissionService
	progress    ProgressService
	summaries   SummaryService
	comments    CommentService
	ingest      IngestService
	learners    LearnerService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	db := newTestDB(t)

	cfg := &config.Config{}
	cfg.App.Name = "CurriculumKeepTest"
	cfg.App.ReadyLimit = 20
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.AccessTokenTTL = time.Hour

	learnerRepo := repository.NewGormLearnerRepository()
	taskRepo := repository.NewGormTaskRepository()
	depRepo := repository.NewGormDependencyRepository()
	counterRepo := repository.NewGormCounterRepository()
	progRepo := repository.NewGormProgressRepository()
	subRepo := repository.NewGormSubmissionRepository()
	valRepo := repository.NewGormValidationRepository()
	summaryRepo := repository.NewGormSummaryRepository()
	commentRepo := repository.NewGormCommentRepository()
	eventRepo := repository.NewGormEventRepository()

	status := NewStatusService(db, taskRepo, progRepo, valRepo, eventRepo, &LogNotifier{})

	return &testEngine{
		db:          db,
		tasks:       NewTaskService(db, taskRepo, depRepo, counterRepo, progRepo, subRepo, eventRepo),
		graph:       NewGraphService(db, taskRepo, depRepo, progRepo, eventRepo),
		status:      status,
		submissions: NewSubmissionService(db, taskRepo, subRepo, valRepo, status),
		progress:    NewProgressService(db, taskRepo, progRepo, valRepo),
		summaries:   NewSummaryService(db, taskRepo, progRepo, subRepo, summaryRepo),
		comments:    NewCommentService(db, taskRepo, commentRepo),
		ingest:      NewIngestService(db, taskRepo, depRepo, counterRepo, eventRepo),
		learners:    NewLearnerService(db, cfg, learnerRepo, progRepo, subRepo, valRepo, summaryRepo, commentRepo),
	}
}

func (e *testEngine) mustCreateProject(t *testing.T, title string) *model.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(context.Background(), &model.CreateTaskRequest{
		Title:    title,
		TaskType: model.TaskTypeProject,
	})
	require.NoError(t, err)
	return task
}

func (e *testEngine) mustCreateChild(t *testing.T, parentID string, taskType model.TaskType, title string) *model.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(context.Background(), &model.CreateTaskRequest{
		ParentID: &parentID,
		Title:    title,
		TaskType: taskType,
	})
	require.NoError(t, err)
	return task
}

// mustCloseSubtask は合格提出を済ませてから subtask を閉じます。
func (e *testEngine) mustCloseSubtask(t *testing.T, taskID string, learnerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	res, err := e.submissions.Submit(ctx, taskID, learnerID, &model.SubmitRequest{Content: "done"})
	require.NoError(t, err)
	require.True(t, res.Passed)
	_, err = e.status.StartTask(ctx, taskID, learnerID)
	require.NoError(t, err)
	_, err = e.status.CloseTask(ctx, taskID, learnerID, nil)
	require.NoError(t, err)
}
