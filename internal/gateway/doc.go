// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。受信リクエストのJWTを検証し、検証済みの識別情報を
// X-User-Id / X-Roles / X-Center-Id ヘッダーとして内部サービスに転送する。
// 内部サービスはこのヘッダーを信頼し、トークンの再検証は行わない。
//
// Gateway自身は状態を持たない。認可の判定も行わず、ロールによる
// アクセス制御は各サービス側が担当する。
package gateway
