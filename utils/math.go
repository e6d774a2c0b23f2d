package utils

// MaxInt returns the maximum of two values.
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MinInt returns the minimum of two values.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampInt returns `n` limited to the closed range [lo, hi].
func ClampInt(n, lo, hi int) int {
	return MaxInt(lo, MinInt(n, hi))
}
