package pathmatch

import "strings"

// Match はパスがグロブパターンにマッチするかを判定する。
// "*" は任意の1セグメント、"**" は0個以上の任意のセグメント列にマッチする。
// それ以外のセグメントは完全一致で比較する。
func Match(pattern, path string) bool {
	return matchSegments(splitSegments(pattern), splitSegments(path))
}

// MatchAny はパスがパターン集合のいずれかにマッチするかを判定する。
// パターンの順序に意味はない。
func MatchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if Match(pattern, path) {
			return true
		}
	}
	return false
}

// splitSegments はパスをセグメントに分割する。先頭と末尾のスラッシュは無視する。
func splitSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchSegments はセグメント列同士を再帰的に照合する。
// "**" は残りのパスの任意の位置まで読み飛ばせるため、
// マッチする開始位置を総当たりで探索する。
func matchSegments(pattern, segments []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "**":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(segments); i++ {
				if matchSegments(pattern[1:], segments[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(segments) == 0 {
				return false
			}
		default:
			if len(segments) == 0 || pattern[0] != segments[0] {
				return false
			}
		}
		pattern = pattern[1:]
		segments = segments[1:]
	}
	return len(segments) == 0
}
