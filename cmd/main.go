// cmd/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/handlers"
	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/repository"
	"go_4_curriculum_keep/internal/service"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	//　設定ファイル読み込み用の一時的なロガー設定
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(tempLogger)
	log.Println("Log Config Loading...")

	// Configを読み込み
	if err := config.LoadConfig("./configs"); err != nil {
		slog.Error("Error loading configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// === 設定に基づいて slog ロガーを初期化 ===
	logLevel := new(slog.LevelVar)
	switch strings.ToLower(config.Cfg.Log.Level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
		slog.Warn("Unknown log level specified in config, defaulting to INFO", slog.String("level", config.Cfg.Log.Level))
	}
	var handler slog.Handler
	appEnv := os.Getenv("APP_ENV")
	if strings.ToLower(appEnv) == "dev" {
		// 開発時はtintの色付きテキストログを使う
		tintOpts := &tint.Options{
			Level:      logLevel,
			TimeFormat: time.RFC3339,
		}
		handler = tint.NewHandler(os.Stderr, tintOpts)
		tempLogger.Info("Using TINT log handler", slog.String("APP_ENV", appEnv))
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}
		handler = slog.NewJSONHandler(os.Stderr, jsonOpts)
		tempLogger.Info("Using JSON log handler", slog.String("APP_ENV", appEnv))
	}
	logger := slog.New(handler)
	log.Println("Log Config Loaded...")

	slog.SetDefault(logger)

	slog.Info("Application starting...")

	// 2. Initialize Database Connection (GORM)
	db, err := repository.NewDB(config.Cfg.Database.URL, logger)
	if err != nil {
		slog.Error("Error initializing database", slog.Any("error", err))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Error getting underlying sql.DB from GORM", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Error closing database connection", slog.Any("error", err))
		} else {
			slog.Info("Database connection closed.")
		}
	}()

	if err := repository.Migrate(db); err != nil {
		slog.Error("Error running database migration", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Dependency Injection
	learnerRepo := repository.NewGormLearnerRepository()
	taskRepo := repository.NewGormTaskRepository()
	depRepo := repository.NewGormDependencyRepository()
	counterRepo := repository.NewGormCounterRepository()
	progressRepo := repository.NewGormProgressRepository()
	submissionRepo := repository.NewGormSubmissionRepository()
	validationRepo := repository.NewGormValidationRepository()
	summaryRepo := repository.NewGormSummaryRepository()
	commentRepo := repository.NewGormCommentRepository()
	eventRepo := repository.NewGormEventRepository()

	notifier := service.NewNotifier(&config.Cfg)

	learnerService := service.NewLearnerService(db, &config.Cfg, learnerRepo, progressRepo, submissionRepo, validationRepo, summaryRepo, commentRepo)
	taskService := service.NewTaskService(db, taskRepo, depRepo, counterRepo, progressRepo, submissionRepo, eventRepo)
	graphService := service.NewGraphService(db, taskRepo, depRepo, progressRepo, eventRepo)
	statusService := service.NewStatusService(db, taskRepo, progressRepo, validationRepo, eventRepo, notifier)
	submissionService := service.NewSubmissionService(db, taskRepo, submissionRepo, validationRepo, statusService)
	progressService := service.NewProgressService(db, taskRepo, progressRepo, validationRepo)
	summaryService := service.NewSummaryService(db, taskRepo, progressRepo, submissionRepo, summaryRepo)
	commentService := service.NewCommentService(db, taskRepo, commentRepo)
	ingestService := service.NewIngestService(db, taskRepo, depRepo, counterRepo, eventRepo)

	learnerHandler := handlers.NewLearnerHandler(learnerService, logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger)
	workHandler := handlers.NewWorkHandler(graphService, statusService, &config.Cfg, logger)
	submissionHandler := handlers.NewSubmissionHandler(submissionService, logger)
	progressHandler := handlers.NewProgressHandler(progressService, logger)
	summaryHandler := handlers.NewSummaryHandler(summaryService, logger)
	commentHandler := handlers.NewCommentHandler(commentService, logger)
	adminHandler := handlers.NewAdminHandler(taskService, graphService, ingestService, logger)

	// 4. Setup Router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(logger))

	// CORS 設定と適用 (設定ファイルから読み込んだ値を使用)
	corsOptions := cors.Options{
		AllowedOrigins:   config.Cfg.CORS.AllowedOrigins,
		AllowedMethods:   config.Cfg.CORS.AllowedMethods,
		AllowedHeaders:   config.Cfg.CORS.AllowedHeaders,
		ExposedHeaders:   config.Cfg.CORS.ExposedHeaders,
		AllowCredentials: config.Cfg.CORS.AllowCredentials,
		MaxAge:           config.Cfg.CORS.MaxAge,
		Debug:            false,
	}
	corsHandler := cors.New(corsOptions)
	r.Use(corsHandler.Handler)

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		// --- Public routes ---
		r.Post("/auth/register", learnerHandler.Register)
		r.Post("/auth/login", learnerHandler.Login)

		// --- Protected routes (require learner JWT) ---
		r.Group(func(r chi.Router) {
			if config.Cfg.Auth.Enabled {
				slog.Info("Applying production authentication middleware")
				r.Use(middleware.LearnerAuthMiddleware(&config.Cfg))
			} else {
				// ローカル開発用。X-Learner-ID ヘッダをそのまま信用する
				slog.Warn("Authentication disabled, using development learner context")
				r.Use(middleware.DevLearnerContextMiddleware)
			}

			r.Route("/me", func(r chi.Router) {
				r.Get("/", learnerHandler.GetMe)
				r.Delete("/", learnerHandler.DeleteMe)
			})

			r.Route("/projects/{project_id}", func(r chi.Router) {
				r.Get("/tasks", taskHandler.ListProjectTasks)
				r.Get("/ready", workHandler.GetReadyTasks)
				r.Get("/progress", progressHandler.GetProjectProgress)
			})

			r.Route("/tasks/{task_id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Get("/blocking", workHandler.GetBlockingTasks)
				r.Post("/start", workHandler.StartTask)
				r.Post("/close", workHandler.CloseTask)
				r.Post("/reopen", workHandler.ReopenTask)
				r.Post("/submissions", submissionHandler.Submit)
				r.Get("/submissions", submissionHandler.ListSubmissions)
				r.Post("/summaries", summaryHandler.Summarize)
				r.Get("/summaries", summaryHandler.ListSummaries)
				r.Post("/comments", commentHandler.PostComment)
				r.Get("/comments", commentHandler.ListComments)
			})

			r.Post("/submissions/{submission_id}/revalidate", submissionHandler.Revalidate)
		})
	})

	// Admin Routes (カリキュラム編集サーフェス)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/tasks", adminHandler.CreateTask)
		r.Patch("/tasks/{task_id}", adminHandler.PatchTask)
		r.Delete("/tasks/{task_id}", adminHandler.DeleteTask)
		r.Post("/tasks/{task_id}/move", adminHandler.MoveTask)
		r.Post("/dependencies", adminHandler.AddDependency)
		r.Delete("/dependencies", adminHandler.RemoveDependency)
		r.Get("/dependencies/check", adminHandler.CheckCycle)
		r.Get("/projects/{project_id}/cycles", adminHandler.DetectCycles)
		r.Post("/projects/ingest", adminHandler.IngestProject)
	})

	// Health Check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := sqlDB.PingContext(ctx); err != nil {
			slog.ErrorContext(ctx, "Health check failed: could not ping DB", slog.Any("error", err))
			http.Error(w, "Health check failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 5. Start Server
	server := &http.Server{
		Addr:         config.Cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", slog.String("port", config.Cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not listen on port", slog.String("port", config.Cfg.Server.Port), slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", slog.Any("error", err))
	}

	log.Println("Server exiting")
}
