package scanning

// SelectBest picks the authoritative text: the longest by character count,
// with ties going to the earliest entry. It returns false for an empty list.
func SelectBest(candidates []RecognizedText) (RecognizedText, bool) {
	if len(candidates) == 0 {
		return RecognizedText{}, false
	}

	best := candidates[0]
	bestLen := len([]rune(best.Text))
	for _, c := range candidates[1:] {
		if n := len([]rune(c.Text)); n > bestLen {
			best, bestLen = c, n
		}
	}
	return best, true
}
