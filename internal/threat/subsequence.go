package threat

// IsSubsequence reports whether pattern appears as an order-preserving,
// not-necessarily-contiguous subsequence of trace via a two-pointer scan.
func IsSubsequence(trace, pattern []string) bool {
	if len(pattern) == 0 {
		return true
	}
	j := 0
	for _, tok := range trace {
		if tok == pattern[j] {
			j++
			if j == len(pattern) {
				return true
			}
		}
	}
	return false
}
