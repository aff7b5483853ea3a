// Package user はユーザー管理サービスの内部実装を提供する。
//
// ユーザーの登録・更新・削除とパスワードリセットを担当する。
// 管理サービスとはデータベースを共有しないため、センターの存在確認と
// ドクター連携の確認はHTTP越しの問い合わせで行い、ステータスコードの
// 分類のみで結果を判定する。管理サービスが利用できない間は登録・削除を
// 進めず、呼び出し元に再試行を促す。
//
// 認証はgatewayが済ませており、呼び出し元の識別はX-User-Id / X-Roles /
// X-Center-Idヘッダーを信頼して行う。
package user
