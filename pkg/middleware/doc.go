// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// gatewayで全リクエストを認証するJWT検証フィルタ、検証済み識別情報を
// 信頼ヘッダー経由で受け取る下流サービス用ミドルウェア、ロールによる
// アクセス制御、パニックリカバリ、CORS設定を含む。
package middleware
