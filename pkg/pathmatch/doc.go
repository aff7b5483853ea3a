// Package pathmatch はURLパスのグロブパターンマッチングを提供する。
//
// gatewayサービスが認証不要の公開パス（ヘルスチェック、APIドキュメント、
// パスワードリセット系エンドポイント）を判定するために使用する。
//
// パターンはスラッシュ区切りのセグメント単位で解釈される。
// "*" は任意の1セグメントに、"**" は0個以上の任意のセグメント列にマッチする。
//
//	pathmatch.Match("/swagger-ui/**", "/swagger-ui/index.html") // true
//	pathmatch.Match("/**/v3/api-docs", "/user/v3/api-docs")     // true
//	pathmatch.Match("/auth/*", "/auth/login")                   // true
//	pathmatch.Match("/auth/*", "/auth/users/1")                 // false
//
// パターン同士の順序に意味はなく、MatchAnyはいずれか1つでもマッチすれば
// trueを返す。
package pathmatch
