// internal/middleware/dev_auth.go
package middleware

import (
	"context"
	"log"
	"net/http"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/webutil"

	"github.com/google/uuid"
)

// DevLearnerContextMiddleware は開発時用ミドルウェアです。
// X-Learner-ID ヘッダーからUUIDを抽出し、コンテキストに設定します。
// DBでの学習者存在チェックは行いません。
func DevLearnerContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		learnerIDStr := r.Header.Get("X-Learner-ID")
		if learnerIDStr == "" {
			// 開発時でも Learner ID は必須とする (API利用のために)
			log.Println("[DEV AUTH] Failed: X-Learner-ID header missing")
			webutil.RespondWithError(w, http.StatusUnauthorized, "[DEV] Unauthorized: Missing X-Learner-ID header")
			return
		}

		learnerID, err := uuid.Parse(learnerIDStr)
		if err != nil {
			log.Printf("[DEV AUTH] Failed: Invalid X-Learner-ID format: %s", learnerIDStr)
			webutil.RespondWithError(w, http.StatusUnauthorized, "[DEV] Unauthorized: Invalid X-Learner-ID format")
			return
		}

		// DB検証はスキップ
		ctx := context.WithValue(r.Context(), model.LearnerIDKey, learnerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
