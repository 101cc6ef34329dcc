// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"strings"
	"unicode"
)

// Password policy rule tags reported in PolicyResult.Errors.
const (
	RuleMinLength = "min_length"
	RuleUppercase = "uppercase"
	RuleLowercase = "lowercase"
	RuleNumber    = "number"
	RuleSymbol    = "symbol"
)

// Password policy thresholds.
const (
	MinPasswordLength   = 8
	StrongBonusLength   = 12
	VeryStrongBonusLen  = 16
	bonusRulesThreshold = 3
)

// PasswordSymbols is the fixed punctuation set that satisfies the symbol rule.
const PasswordSymbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// Strength is a display band derived from the policy score.
type Strength string

// Strength bands.
const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthGood   Strength = "good"
	StrengthStrong Strength = "strong"
)

// PolicyResult is the outcome of validating a candidate password.
type PolicyResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Strength Strength `json:"strength"`
	Score    int      `json:"score"`
}

// PolicyRule describes one requirement for clients rendering a checklist.
type PolicyRule struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// PolicyRules lists the password requirements in evaluation order.
func PolicyRules() []PolicyRule {
	return []PolicyRule{
		{Key: RuleMinLength, Description: "At least 8 characters"},
		{Key: RuleUppercase, Description: "At least one uppercase letter"},
		{Key: RuleLowercase, Description: "At least one lowercase letter"},
		{Key: RuleNumber, Description: "At least one number"},
		{Key: RuleSymbol, Description: "At least one symbol (" + PasswordSymbols + ")"},
	}
}

// ValidatePassword scores a password against the fixed rule set.
//
// Each satisfied rule adds one point. Passwords meeting at least three rules earn a
// further point at 12 characters and another at 16. The password is valid when no
// rule is unmet; the bonuses only affect Strength.
func ValidatePassword(password string) PolicyResult {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		}
	}

	checks := []struct {
		rule string
		ok   bool
	}{
		{RuleMinLength, length >= MinPasswordLength},
		{RuleUppercase, hasUpper},
		{RuleLowercase, hasLower},
		{RuleNumber, hasDigit},
		{RuleSymbol, hasSymbol},
	}

	result := PolicyResult{Errors: []string{}}
	for _, c := range checks {
		if c.ok {
			result.Score++
		} else {
			result.Errors = append(result.Errors, c.rule)
		}
	}

	if result.Score >= bonusRulesThreshold {
		if length >= StrongBonusLength {
			result.Score++
		}
		if length >= VeryStrongBonusLen {
			result.Score++
		}
	}

	result.Strength = strengthFor(result.Score)
	result.Valid = len(result.Errors) == 0
	return result
}

func strengthFor(score int) Strength {
	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthFair
	case score <= 5:
		return StrengthGood
	default:
		return StrengthStrong
	}
}
