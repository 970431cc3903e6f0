package nodes

// DefaultMaxToolCalls allows one tool round per turn.
const DefaultMaxToolCalls = 1

// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// MaxRunSteps bounds graph steps: three nodes per tool round plus the fixed path.
func MaxRunSteps(maxToolCalls int) int {
	steps := 10 + normalizeMaxToolCalls(maxToolCalls)*4
	if steps < 20 {
		steps = 20
	}
	return steps
}
