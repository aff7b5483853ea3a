// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 各サービスが他のサービスのAPIを呼び出す際に使用する。
// 管理サービスへの存在確認、通知サービスへの通知登録など、
// サービス間の通信パターンを統一する。
//
// クライアントはリトライを行わない。呼び出しは常に1回きりで、
// 失敗時の扱いは呼び出し側がOutcomeの分類に基づいて判断する。
package httpclient
