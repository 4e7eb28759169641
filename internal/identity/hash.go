package identity

// Hash sums the Unicode scalar values of text. It is used as a stable index
// into palettes and catalogs, so it must never depend on process state.
func Hash(text string) int {
	sum := 0
	for _, r := range text {
		sum += int(r)
	}
	return sum
}

// pick returns the entry chosen by hash. Empty initials always select the
// first entry.
func pick(values []string, initials string, hash int) string {
	if len(values) == 0 {
		return ""
	}
	if initials == "" {
		return values[0]
	}
	return values[hash%len(values)]
}
