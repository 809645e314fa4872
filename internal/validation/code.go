package validation

import (
	"fmt"
	"math"

	"labdash/internal/models"
)

const (
	codeWidth   = 3
	minSiteCode = 1
	maxSiteCode = 7
)

// PointRule validates and canonicalizes the site identifier of a row
type PointRule interface {
	// Field is the row key holding the site identifier
	Field() string
	// Canonical returns the stored form of raw or an error
	Canonical(raw any) (string, error)
}

// ThreeDigitCode is the rule of the coded schema: exactly three digits whose
// value lies in [Min, Max]. Numeric inputs (JSON numbers, numeric cells) are
// left-padded to three digits first; text must already be three characters.
type ThreeDigitCode struct {
	Key string
	Min int
	Max int
}

// SiteCode is the three-digit rule used by toc, ph and conductividad
var SiteCode = ThreeDigitCode{Key: "pu", Min: minSiteCode, Max: maxSiteCode}

func (c ThreeDigitCode) Field() string {
	return c.Key
}

func (c ThreeDigitCode) Canonical(raw any) (string, error) {
	if n, ok := numeric(raw); ok {
		return c.fromNumber(n)
	}

	text, ok := rawText(raw)
	if !ok {
		return "", c.invalid("", "code is empty")
	}
	return c.fromText(text)
}

func (c ThreeDigitCode) fromNumber(n float64) (string, error) {
	text, _ := rawText(n)
	if math.IsInf(n, 0) || n != math.Trunc(n) || n < 0 {
		return "", c.invalid(text, "code must be a whole number")
	}
	if n >= math.Pow10(codeWidth) {
		return "", c.invalid(text, fmt.Sprintf("code must have exactly %d digits", codeWidth))
	}
	return c.fromText(fmt.Sprintf("%0*d", codeWidth, int64(n)))
}

func (c ThreeDigitCode) fromText(text string) (string, error) {
	if len(text) != codeWidth {
		return "", c.invalid(text, fmt.Sprintf("code must have exactly %d digits", codeWidth))
	}

	value := 0
	for _, r := range text {
		if r < '0' || r > '9' {
			return "", c.invalid(text, "code must be numeric")
		}
		value = value*10 + int(r-'0')
	}

	if value < c.Min || value > c.Max {
		return "", c.invalid(text, fmt.Sprintf("code must be between %0*d and %0*d", codeWidth, c.Min, codeWidth, c.Max))
	}
	return text, nil
}

func (c ThreeDigitCode) invalid(value, reason string) error {
	return &models.InvalidCodeError{Field: c.Key, Value: value, Reason: reason}
}

// ValidateCode applies the default three-digit site code rule
func ValidateCode(raw any) (string, error) {
	return SiteCode.Canonical(raw)
}

// FreeFormPoint is the rule of the point+parameter schema: any non-empty token
type FreeFormPoint struct {
	Key string
}

func (p FreeFormPoint) Field() string {
	return p.Key
}

func (p FreeFormPoint) Canonical(raw any) (string, error) {
	text, ok := rawText(raw)
	if !ok {
		return "", &models.MissingFieldsError{Fields: []string{p.Key}}
	}
	return text, nil
}
