package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/oxhq/varix/models"
)

const rangeChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// rangeCap bounds two-character combination expansion; wider ranges fall
// back to their endpoints.
const rangeCap = 1000

// Validation is the outcome of checking one code against the constraints
// of its level.
type Validation struct {
	IsValid             bool                `json:"is_valid"`
	ViolatedConstraints []models.Constraint `json:"violated_constraints"`
	Message             *string             `json:"message,omitempty"`
}

// ValidateCode checks a code against every constraint of the level. A
// constraint fires when all of its conditions hold against the previous
// selections; a fired allow-constraint is violated when the code is
// missing from its expanded list, a deny-constraint when it is present.
func (e *Engine) ValidateCode(ctx context.Context, code string, level int, selections map[int]string) (Validation, error) {
	ok := Validation{IsValid: true, ViolatedConstraints: []models.Constraint{}}

	constraints, err := e.store.ConstraintsForLevel(ctx, level)
	if err != nil {
		return ok, err
	}
	if len(constraints) == 0 {
		return ok, nil
	}

	var violated []models.Constraint
	for _, c := range constraints {
		if !conditionsMet(c.Conditions, selections) {
			continue
		}

		allowed := expandConstraintCodes(c.Codes)
		switch c.Mode {
		case "allow":
			if !containsCode(allowed, code) {
				violated = append(violated, c)
			}
		case "deny":
			if containsCode(allowed, code) {
				violated = append(violated, c)
			}
		}
	}

	if len(violated) == 0 {
		return ok, nil
	}
	return Validation{
		IsValid:             false,
		ViolatedConstraints: violated,
		Message:             ptr(fmt.Sprintf("Code '%s' verstößt gegen %d Constraint(s)", code, len(violated))),
	}, nil
}

// conditionsMet reports whether every condition holds against the
// selections. A missing selection at a condition's target level means
// the constraint does not apply.
func conditionsMet(conditions []models.ConstraintCondition, selections map[int]string) bool {
	for _, cond := range conditions {
		target, ok := selections[cond.TargetLevel]
		if !ok {
			return false
		}
		switch cond.ConditionType {
		case "exact_code":
			if target != cond.Value {
				return false
			}
		case "prefix":
			if !strings.HasPrefix(target, cond.Value) {
				return false
			}
		case "pattern":
			if !patternMatches(len(target), cond.Value) {
				return false
			}
		}
	}
	return true
}

func expandConstraintCodes(codes []models.ConstraintCode) []string {
	var all []string
	for _, c := range codes {
		switch c.CodeType {
		case "single":
			all = append(all, c.CodeValue)
		case "range":
			all = append(all, ExpandCodeRange(c.CodeValue)...)
		}
	}
	return all
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// patternMatches reports whether a code length satisfies a pattern value:
// an exact integer like "5" or an inclusive "4-6" range.
func patternMatches(codeLength int, patternValue string) bool {
	if strings.Contains(patternValue, "-") {
		lo, hi, ok := splitIntRange(patternValue)
		if !ok {
			return false
		}
		return lo <= codeLength && codeLength <= hi
	}
	want, err := strconv.Atoi(patternValue)
	if err != nil {
		return false
	}
	return codeLength == want
}

func splitIntRange(value string) (lo, hi int, ok bool) {
	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// ExpandCodeRange expands a code range into the codes it covers:
//
//	C010-C020   shared prefix with zero-padded numeric suffixes
//	A-X         single-character alphabetic span
//	0-Z         single-character span over digits then letters
//	Z0-ZZ       two-character combinations, capped at 1000 codes
//
// Anything wider collapses to its two endpoints, and a value without a
// dash is returned as-is.
func ExpandCodeRange(rangeStr string) []string {
	if !strings.Contains(rangeStr, "-") {
		return []string{rangeStr}
	}

	split := strings.SplitN(rangeStr, "-", 2)
	start, end := split[0], split[1]

	// The shared prefix stops at the first digit so "C010-C020" keeps
	// its numeric suffix intact.
	prefix := commonAlphaPrefix(start, end)
	startSuffix := start[len(prefix):]
	endSuffix := end[len(prefix):]

	var codes []string
	switch {
	case isAllDigits(startSuffix) && isAllDigits(endSuffix):
		lo, err1 := strconv.Atoi(startSuffix)
		hi, err2 := strconv.Atoi(endSuffix)
		if err1 != nil || err2 != nil {
			return []string{rangeStr}
		}
		width := len(startSuffix)
		for n := lo; n <= hi; n++ {
			codes = append(codes, fmt.Sprintf("%s%0*d", prefix, width, n))
		}

	case len(startSuffix) == 1 && len(endSuffix) == 1 && isAlpha(startSuffix) && isAlpha(endSuffix):
		lo := []rune(strings.ToUpper(startSuffix))[0]
		hi := []rune(strings.ToUpper(endSuffix))[0]
		for r := lo; r <= hi; r++ {
			codes = append(codes, prefix+string(r))
		}

	case len(startSuffix) == 1 && len(endSuffix) == 1:
		lo := strings.IndexByte(rangeChars, strings.ToUpper(startSuffix)[0])
		hi := strings.IndexByte(rangeChars, strings.ToUpper(endSuffix)[0])
		if lo < 0 || hi < 0 {
			return []string{start, end}
		}
		for i := lo; i <= hi; i++ {
			codes = append(codes, prefix+string(rangeChars[i]))
		}

	case len(startSuffix) <= 2 && len(endSuffix) <= 2:
		codes = expandCombinations(prefix, startSuffix, endSuffix)

	default:
		codes = []string{start, end}
	}

	if len(codes) == 0 {
		return []string{start, end}
	}
	return codes
}

// expandCombinations handles mixed-width suffixes up to two characters.
func expandCombinations(prefix, startSuffix, endSuffix string) []string {
	var codes []string
	up := strings.ToUpper
	switch {
	case len(startSuffix) == 1 && len(endSuffix) == 2:
		// Every remaining single character, then every two-character
		// combination up to the end.
		lo := strings.IndexByte(rangeChars, up(startSuffix)[0])
		if lo < 0 {
			return nil
		}
		for i := lo; i < len(rangeChars); i++ {
			codes = append(codes, prefix+string(rangeChars[i]))
		}
		for _, c1 := range rangeChars {
			for _, c2 := range rangeChars {
				code := string(c1) + string(c2)
				if code <= up(endSuffix) {
					codes = append(codes, prefix+code)
				}
				if len(codes) > rangeCap {
					return codes
				}
			}
		}

	case len(startSuffix) == 2 && len(endSuffix) == 2:
		for _, c1 := range rangeChars {
			for _, c2 := range rangeChars {
				code := string(c1) + string(c2)
				if up(startSuffix) <= code && code <= up(endSuffix) {
					codes = append(codes, prefix+code)
				}
				if len(codes) > rangeCap {
					return codes
				}
			}
		}
	}
	return codes
}

// commonAlphaPrefix collects the leading characters shared by both
// bounds, stopping at the first digit.
func commonAlphaPrefix(start, end string) string {
	n := len(start)
	if len(end) < n {
		n = len(end)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if start[i] != end[i] || unicode.IsDigit(rune(start[i])) {
			break
		}
		b.WriteByte(start[i])
	}
	return b.String()
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
