package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/tablecode/tablecode/internal/apperr"
)

const PinLength = 8

var pinPattern = regexp.MustCompile(`^\d{8}$`)

// NormalizePin trims surrounding whitespace. Exact length and digit-class
// validation happens in ValidatePinFormat; nothing else is changed.
func NormalizePin(pin string) string {
	return strings.TrimSpace(pin)
}

func ValidatePinFormat(pin string) error {
	if !pinPattern.MatchString(pin) {
		return apperr.Validation("pin", "must be exactly 8 digits")
	}
	return nil
}

// CheckPinStrength rejects degenerate PINs: a single repeated digit, simple
// ascending/descending runs, and short cycles that repeat to fill the PIN
// (e.g. 12341234). The server-side check is authoritative; there is no
// client mirror.
func CheckPinStrength(pin string) error {
	if err := ValidatePinFormat(pin); err != nil {
		return err
	}

	if allSame(pin) || sequential(pin) || cyclic(pin) {
		return apperr.Validation("pin", "PIN is too predictable")
	}
	return nil
}

func allSame(pin string) bool {
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			return false
		}
	}
	return true
}

// sequential detects runs like 12345678 and 87654321, including the 9->0
// and 0->9 wraps.
func sequential(pin string) bool {
	asc, desc := true, true
	for i := 1; i < len(pin); i++ {
		prev, cur := int(pin[i-1]-'0'), int(pin[i]-'0')
		if cur != (prev+1)%10 {
			asc = false
		}
		if cur != (prev+9)%10 {
			desc = false
		}
	}
	return asc || desc
}

// cyclic detects a period-2 or period-4 repetition filling all 8 digits
// (halves and quarters; 8 has no whole third).
func cyclic(pin string) bool {
	for _, period := range []int{2, 4} {
		repeats := true
		for i := period; i < len(pin); i++ {
			if pin[i] != pin[i-period] {
				repeats = false
				break
			}
		}
		if repeats {
			return true
		}
	}
	return false
}

// GeneratePin draws a uniform random 8-digit PIN from crypto/rand.
// Regenerates on the rare weak draw so issued PINs always pass the policy.
func GeneratePin() (string, error) {
	span := big.NewInt(90000000) // 10000000..99999999
	for i := 0; i < 16; i++ {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return "", fmt.Errorf("draw random pin: %w", err)
		}
		pin := fmt.Sprintf("%08d", n.Int64()+10000000)
		if CheckPinStrength(pin) == nil {
			return pin, nil
		}
	}
	return "", fmt.Errorf("could not draw a strong pin")
}
