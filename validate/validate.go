// Package validate rejects malformed, oversized, or structurally dangerous
// input before it reaches any decision procedure.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/snow-ghost/fusion/core"
)

// Config bounds the validator. DenyPatterns are regular expressions matched
// case-insensitively; they are configuration, not code, so deployments can
// tune them to whatever injection vectors matter for their host.
type Config struct {
	MaxInputLength  int
	MaxNestingDepth int
	DenyPatterns    []string
}

// DefaultDenyPatterns catches common code/command injection shapes. Callers
// embedding the engine behind other runtimes should extend or replace them.
var DefaultDenyPatterns = []string{
	`__import__`,
	`\beval\s*\(`,
	`\bexec\s*\(`,
	`\bcompile\s*\(`,
	`\bopen\s*\(`,
	`\bsystem\s*\(`,
	`subprocess`,
	`os\.exec`,
	`\.\./`,
	`<script`,
}

func DefaultConfig() Config {
	return Config{
		MaxInputLength:  10000,
		MaxNestingDepth: 50,
		DenyPatterns:    DefaultDenyPatterns,
	}
}

// Validator implements core.Validator. Validate is pure and deterministic;
// it never executes or interprets the input.
type Validator struct {
	cfg  Config
	deny []*regexp.Regexp
}

func New(cfg Config) (*Validator, error) {
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = DefaultConfig().MaxInputLength
	}
	if cfg.MaxNestingDepth <= 0 {
		cfg.MaxNestingDepth = DefaultConfig().MaxNestingDepth
	}
	deny := make([]*regexp.Regexp, 0, len(cfg.DenyPatterns))
	for _, p := range cfg.DenyPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		deny = append(deny, re)
	}
	return &Validator{cfg: cfg, deny: deny}, nil
}

// Validate checks the text against the configured ceilings and denylist and
// returns a sanitized copy on success. All rejections are *core.ValidationError.
func (v *Validator) Validate(text string) (string, error) {
	if len(text) > v.cfg.MaxInputLength {
		return "", &core.ValidationError{
			Reason: fmt.Sprintf("input length %d exceeds maximum of %d", len(text), v.cfg.MaxInputLength),
		}
	}

	if strings.ContainsRune(text, 0) {
		return "", &core.ValidationError{Reason: "input contains null bytes"}
	}
	for _, r := range text {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return "", &core.ValidationError{
				Reason: fmt.Sprintf("input contains control byte 0x%02x", r),
			}
		}
	}

	if depth := nestingDepth(text); depth > v.cfg.MaxNestingDepth {
		return "", &core.ValidationError{
			Reason: fmt.Sprintf("nesting depth %d exceeds maximum of %d", depth, v.cfg.MaxNestingDepth),
		}
	}

	for _, re := range v.deny {
		if re.MatchString(text) {
			return "", &core.ValidationError{
				Reason: fmt.Sprintf("input matches denied pattern %q", re.String()),
			}
		}
	}

	return sanitize(text), nil
}

// Warnings reports non-fatal oddities worth logging, currently excessive
// single-character repetition (a cheap DoS tell). Separate from Validate so
// validation itself stays side-effect free.
func (v *Validator) Warnings(text string) []string {
	var warns []string
	if hasExcessiveRepetition(text, 1000) {
		warns = append(warns, "input contains excessive character repetition")
	}
	return warns
}

func nestingDepth(text string) int {
	depth, maxDepth := 0, 0
	for _, r := range text {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth
}

func hasExcessiveRepetition(text string, threshold int) bool {
	if len(text) < threshold {
		return false
	}
	counts := make(map[rune]int)
	for _, r := range text {
		counts[r]++
		if counts[r] > threshold {
			return true
		}
	}
	return false
}

// sanitize strips unprintable runes and collapses runs of whitespace.
func sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
