package transcript

import (
	"regexp"
	"strings"
)

// Tier names which rule of ExtractCode produced a match.
type Tier string

const (
	TierNone        Tier = "none"
	TierContext     Tier = "context"
	TierStudentLine Tier = "student_line"
	TierGlobal      Tier = "global"
)

var (
	codeKeyword = regexp.MustCompile(`(?i)code`)
	digitRun    = regexp.MustCompile(`[0-9]+`)
)

// ExtractCode recovers the session code from canonical transcript text.
// See ExtractCodeTier for the rules; ok is false when no 4-digit run exists.
func ExtractCode(text string) (code string, ok bool) {
	code, tier := ExtractCodeTier(text)
	return code, tier != TierNone
}

// ExtractCodeTier applies three rules in order, each over the whole text, and
// returns the first occurrence under the first rule that matches:
//
//  1. the first 4-digit run anywhere after the first "code" (any case),
//  2. the first 4-digit run on a STUDENT-labelled line,
//  3. the first 4-digit run anywhere.
//
// A run is a maximal sequence of digits, so "48213" never yields "4821".
func ExtractCodeTier(text string) (string, Tier) {
	if loc := codeKeyword.FindStringIndex(text); loc != nil {
		if code, ok := firstFourDigitRun(text[loc[1]:]); ok {
			return code, TierContext
		}
	}

	prefix := LabelStudent + ":"
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), prefix) {
			continue
		}
		if code, ok := firstFourDigitRun(line); ok {
			return code, TierStudentLine
		}
	}

	if code, ok := firstFourDigitRun(text); ok {
		return code, TierGlobal
	}
	return "", TierNone
}

func firstFourDigitRun(s string) (string, bool) {
	for _, run := range digitRun.FindAllString(s, -1) {
		if len(run) == 4 {
			return run, true
		}
	}
	return "", false
}
