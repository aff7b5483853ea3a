package httpclient

// Outcome はサービス間呼び出しの結果をステータスコードの分類で表す。
// 判定はステータスコードのクラスのみで行い、レスポンスボディは参照しない。
type Outcome string

const (
	// OutcomeSuccess は2xx応答。確認対象が存在することを示す。
	OutcomeSuccess Outcome = "success"
	// OutcomeNotFound は4xx応答。確認対象の条件が成立しないことを示す。
	OutcomeNotFound Outcome = "not_found"
	// OutcomeUnavailable は5xx応答または分類外の応答。
	// 接続先が一時的に利用できないことを示す。
	OutcomeUnavailable Outcome = "unavailable"
)

// ClassifyStatus はHTTPステータスコードをOutcomeに分類する。
// 2xxはOutcomeSuccess、4xxはOutcomeNotFound、5xxを含む
// それ以外はすべてOutcomeUnavailableとなる。
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status >= 400 && status < 500:
		return OutcomeNotFound
	default:
		return OutcomeUnavailable
	}
}
