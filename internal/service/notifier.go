package service

import (
	"context"
	"fmt"
	"log/slog"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/middleware"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
)

// Notifier はタスク完了の通知先です。遷移本体を失敗させてはいけないため、
// 呼び出し側は常にベストエフォートで扱います。
type Notifier interface {
	NotifyTaskClosed(ctx context.Context, learnerID uuid.UUID, taskID string) error
}

// --- LogNotifier ---
type LogNotifier struct{}

func (n *LogNotifier) NotifyTaskClosed(ctx context.Context, learnerID uuid.UUID, taskID string) error {
	logger := middleware.GetLogger(ctx)
	logger.Info("--- Task closed (LogNotifier) ---", "learner_id", learnerID.String(), "task_id", taskID)
	return nil
}

// --- SESNotifier ---
type SESNotifier struct {
	client *sesv2.Client
	cfg    *config.SESConfig
}

// NewSESNotifier は設定に応じて認証方法を切り替えてSESクライアントを生成します
func NewSESNotifier(cfg *config.Config) Notifier {
	var awsCfgOpts []func(*awsconfig.LoadOptions) error
	awsCfgOpts = append(awsCfgOpts, awsconfig.WithRegion(cfg.SES.Region))

	switch cfg.SES.AuthType {
	case "static_credentials":
		slog.Info("Configuring SES with static credentials.")
		if cfg.SES.AccessKeyID == "" || cfg.SES.SecretAccessKey == "" {
			slog.Error("SES auth_type is 'static_credentials' but access_key_id or secret_access_key is missing in config.")
			// 起動時にpanicさせることで、設定ミスに即座に気づけるようにする
			panic("missing static credentials for SES")
		}
		creds := credentials.NewStaticCredentialsProvider(
			cfg.SES.AccessKeyID,
			cfg.SES.SecretAccessKey,
			"",
		)
		awsCfgOpts = append(awsCfgOpts, awsconfig.WithCredentialsProvider(creds))

	case "iam_role":
		slog.Info("Configuring SES with IAM Role credentials.")

	default:
		slog.Warn("Unknown SES auth_type specified, defaulting to IAM Role.", "type", cfg.SES.AuthType)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsCfgOpts...)
	if err != nil {
		slog.Error("Failed to load AWS config for SES", "error", err)
		panic(err)
	}

	return &SESNotifier{
		client: sesv2.NewFromConfig(awsCfg),
		cfg:    &cfg.SES,
	}
}

// NotifyTaskClosed は完了通知メールを運用宛先に送ります。
func (n *SESNotifier) NotifyTaskClosed(ctx context.Context, learnerID uuid.UUID, taskID string) error {
	logger := middleware.GetLogger(ctx)

	subject := fmt.Sprintf("Task closed: %s", taskID)
	body := fmt.Sprintf("Learner %s closed task %s.", learnerID.String(), taskID)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.cfg.From),
		Destination: &types.Destination{
			ToAddresses: []string{n.cfg.From},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := n.client.SendEmail(context.Background(), input); err != nil {
		logger.Error("Failed to send close notification via SES", "error", err, "task_id", taskID)
		return err
	}

	logger.Info("Close notification sent via SES", "task_id", taskID)
	return nil
}

// --- NewNotifier ファクトリ関数 ---
func NewNotifier(cfg *config.Config) Notifier {
	logger := slog.Default()
	switch cfg.Notifier.Type {
	case "ses":
		logger.Info("Initializing SES notifier...")
		return NewSESNotifier(cfg)
	case "log":
		logger.Info("Initializing Log notifier...")
		return &LogNotifier{}
	default:
		logger.Warn("Unknown notifier type, defaulting to LogNotifier", "type", cfg.Notifier.Type)
		return &LogNotifier{}
	}
}
