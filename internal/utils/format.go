// Package utils holds small formatting helpers shared across log lines.
package utils

import (
	"fmt"
	"strings"
)

// FormatStake formats a TAO-denominated stake amount with thousand
// separators and no more than two decimal places, for log readability.
// Adapted from the teacher's FormatStaking: the same integer-part
// thousands-grouping, generalized from a wei->ether big.Int division (the
// subnet's stake values already arrive as decimal TAO, not integer wei) to
// a plain float64.
// Examples:
//   - 1 -> "1"
//   - 1500 -> "1,500"
//   - 100000.5 -> "100,000.50"
func FormatStake(stake float64) string {
	if stake == 0 {
		return "0"
	}

	whole := fmt.Sprintf("%.0f", stake)
	frac := ""
	if stake != float64(int64(stake)) {
		frac = fmt.Sprintf(".%02d", int64((stake-float64(int64(stake)))*100))
	}

	var formatted strings.Builder
	length := len(whole)
	for i, r := range whole {
		if i > 0 && (length-i)%3 == 0 {
			formatted.WriteString(",")
		}
		formatted.WriteRune(r)
	}
	formatted.WriteString(frac)
	return formatted.String()
}
