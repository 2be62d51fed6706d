// internal/config/constants.go
package config

import "time"

// アプリケーション情報
const (
	AppName    = "CurriculumKeep"
	AppVersion = "0.3.1"
)

// デフォルト設定値
const (
	DefaultServerPort     = ":8080"
	DefaultLogLevel       = "info"
	DefaultReadyLimit     = 20
	DefaultNotifierType   = "log"
	DefaultAccessTokenTTL = 24 * time.Hour
)

// グラフ走査の上限。親チェーンや到達可能性探索はここで必ず打ち切る
// (データ破損で実質無限の連鎖ができても再帰が止まるように)。
const (
	MaxHierarchyDepth = 50
	MaxGraphNodes     = 10000
)
