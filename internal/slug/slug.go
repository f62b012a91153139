// Package slug generates the 6-character public codes printed on menu QR
// cards. Codes use the RFC 4648 base32 alphabet (A-Z, 2-7), which avoids
// 0/1/O/I and keeps QR codes in alphanumeric mode for small, fast scans.
package slug

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
)

const (
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	Length   = 6

	// 32^6 = 1,073,741,824 possible codes. Small enough that a code alone
	// never authenticates; it is always paired with the 8-digit PIN.
	defaultMaxAttempts = 10
)

var codePattern = regexp.MustCompile(`^[A-Z2-7]{6}$`)

// Normalize uppercases and trims a submitted code. Every lookup and compare
// goes through this first.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate reports whether code already matches the canonical pattern.
// It does not normalize; callers normalize first.
func Validate(code string) error {
	if !codePattern.MatchString(code) {
		return apperr.Validation("code", "must be a 6-character menu code")
	}
	return nil
}

// CodeChecker reports whether a candidate code is already assigned.
// The tenant store's uniqueness constraint remains the final arbiter;
// this pre-check only reduces create-time retries.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

type Generator struct {
	checker     CodeChecker
	logger      *zap.Logger
	maxAttempts int
}

func NewGenerator(checker CodeChecker, logger *zap.Logger) *Generator {
	return &Generator{checker: checker, logger: logger, maxAttempts: defaultMaxAttempts}
}

// WithMaxAttempts overrides the retry budget. Used by tests.
func (g *Generator) WithMaxAttempts(n int) *Generator {
	g.maxAttempts = n
	return g
}

// Generate produces a collision-free code, retrying with fresh randomness on
// each collision. Fails with an exhausted-retries error after the attempt
// budget is spent.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", apperr.Internal(fmt.Errorf("draw random code: %w", err))
		}

		exists, err := g.checker.CodeExists(ctx, code)
		if err != nil {
			return "", apperr.Internal(fmt.Errorf("check code collision: %w", err))
		}
		if !exists {
			return code, nil
		}

		g.logger.Warn("code collision", zap.Int("attempt", attempt), zap.String("code", code))
	}

	return "", apperr.Exhausted(fmt.Sprintf("failed to generate unique code after %d attempts", g.maxAttempts))
}

// randomCode maps uniform random bytes onto the alphabet 5 bits at a time,
// pulling in a fresh byte whenever fewer than 5 bits remain.
func randomCode() (string, error) {
	buf := make([]byte, 4) // 32 bits covers 6 symbols with refill
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(Length)

	var value uint32
	bits := 0
	byteIndex := 0

	for sb.Len() < Length {
		if bits < 5 {
			if byteIndex >= len(buf) {
				extra := make([]byte, 1)
				if _, err := rand.Read(extra); err != nil {
					return "", err
				}
				buf = append(buf, extra[0])
			}
			value = value<<8 | uint32(buf[byteIndex])
			byteIndex++
			bits += 8
		}
		bits -= 5
		sb.WriteByte(Alphabet[(value>>uint(bits))&0x1f])
	}

	return sb.String(), nil
}
