package scanning

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// totalKeywords mark a line as likely carrying the receipt total
var totalKeywords = []string{"total", "subtotal", "sub total", "amount", "balance", "net"}

// amountPattern matches an optional currency marker followed by a number with
// exactly two decimal digits
var amountPattern = regexp.MustCompile(`(?:(?:₹|\$|rs\.?)\s*)?(\d+\.\d{2})(?:\D|$)`)

// AmountCandidate is a monetary value found on one line of recognized text
type AmountCandidate struct {
	Value decimal.Decimal
	// Priority is set when the line also contained a total-like keyword
	Priority bool
}

// FindAmounts returns every monetary token in text, in reading order
func FindAmounts(text string) []AmountCandidate {
	var candidates []AmountCandidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToLower(line)
		matches := amountPattern.FindAllStringSubmatch(strings.ReplaceAll(line, ",", ""), -1)
		if len(matches) == 0 {
			continue
		}

		priority := containsAny(line, totalKeywords)
		for _, m := range matches {
			v, err := decimal.NewFromString(m[1])
			if err != nil {
				continue
			}
			candidates = append(candidates, AmountCandidate{Value: v, Priority: priority})
		}
	}
	return candidates
}

// ExtractAmount returns the best guess at the receipt total: the largest
// amount from a keyword line, else the largest amount anywhere, else zero.
func ExtractAmount(text string) decimal.Decimal {
	var (
		bestPriority, bestGeneral decimal.Decimal
		havePriority, haveGeneral bool
	)
	for _, c := range FindAmounts(text) {
		if c.Priority {
			if !havePriority || c.Value.GreaterThan(bestPriority) {
				bestPriority, havePriority = c.Value, true
			}
			continue
		}
		if !haveGeneral || c.Value.GreaterThan(bestGeneral) {
			bestGeneral, haveGeneral = c.Value, true
		}
	}

	switch {
	case havePriority:
		return bestPriority
	case haveGeneral:
		return bestGeneral
	default:
		return decimal.Zero
	}
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
