// Package notification は通知サービスの内部実装を提供する。
//
// ユーザーごとの通知を保存し、一覧取得と既読管理を行う。
// ユーザーサービスがパスワードリセット受付時に内部APIを呼び出して
// 通知を登録する。
//
// 認証はgatewayが済ませており、呼び出し元の識別はX-User-Idヘッダーを
// 信頼して行う。内部APIはgatewayを経由しないサービス間通信専用となる。
package notification
