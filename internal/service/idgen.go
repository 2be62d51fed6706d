package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go_4_curriculum_keep/internal/repository"

	"gorm.io/gorm"
)

// プロジェクトIDの既定タグ。ルートタスクのIDは "proj-a1b2" の形式になる。
const defaultProjectTag = "proj"

// NewProjectID はランダムな128bitをハッシュして短いプロジェクトIDを生成します。
// tag が空の場合は既定タグを使います。
func NewProjectID(tag string) (string, error) {
	if tag == "" {
		tag = defaultProjectTag
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("service.NewProjectID: %w", err)
	}
	sum := sha256.Sum256(buf)
	return tag + "-" + hex.EncodeToString(sum[:2]), nil
}

// NextChildID は親ID単位のカウンタから次の階層IDを払い出します。
// 例: 親 "proj-a1b2" の3番目の子は "proj-a1b2.3"。
func NextChildID(ctx context.Context, tx *gorm.DB, counterRepo repository.CounterRepository, parentID string) (string, error) {
	n, err := counterRepo.NextNumber(ctx, tx, parentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%d", parentID, n), nil
}
