package session

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/credential"
)

const (
	// AdminCookieName holds the HMAC digest of the admin key. There is no
	// server-side session store; every request recomputes and compares.
	AdminCookieName = "superadmin_token"

	// CSRFHeader must accompany every protected admin request. A plain
	// cross-site form submission cannot set custom headers, so the cookie
	// alone never proves same-origin intent.
	CSRFHeader      = "X-Requested-With"
	CSRFHeaderValue = "XMLHttpRequest"

	AdminSessionTTL = 24 * time.Hour
)

type AdminSession struct {
	verifier *credential.AdminKeyVerifier
	sleep    func(time.Duration)
}

func NewAdminSession(verifier *credential.AdminKeyVerifier) *AdminSession {
	return &AdminSession{verifier: verifier, sleep: time.Sleep}
}

// WithSleep substitutes the failure delay. Used by tests.
func (a *AdminSession) WithSleep(sleep func(time.Duration)) *AdminSession {
	a.sleep = sleep
	return a
}

// Login verifies the presented admin key and returns the cookie value to
// set. Failures are slowed by a random delay to blunt timing probes and
// rapid guessing.
func (a *AdminSession) Login(presentedKey string) (string, error) {
	if presentedKey == "" || !a.verifier.VerifyKey(presentedKey) {
		a.sleep(failureDelay())
		return "", apperr.Forbidden("invalid admin key")
	}
	return a.verifier.Digest(presentedKey), nil
}

// VerifyCookie checks a previously issued cookie value in constant time.
func (a *AdminSession) VerifyCookie(value string) error {
	if value == "" || !a.verifier.VerifyDigest(value) {
		return apperr.Forbidden("forbidden")
	}
	return nil
}

// failureDelay is 500-1000ms of jitter added to failed admin logins.
func failureDelay() time.Duration {
	n, err := rand.Int(rand.Reader, big.NewInt(500))
	if err != nil {
		return 750 * time.Millisecond
	}
	return time.Duration(500+n.Int64()) * time.Millisecond
}
