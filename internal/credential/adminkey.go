package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// AdminKeyVerifier checks the super-admin shared key without ever running it
// through the slow hash path. The presented key is HMAC'd under a distinct
// server secret and compared in constant time against the precomputed HMAC
// of the configured key. The hex digest doubles as the admin session cookie
// value, verified the same way on every protected request.
type AdminKeyVerifier struct {
	cookieSecret []byte
	expected     string
}

func NewAdminKeyVerifier(adminKey, cookieSecret string) *AdminKeyVerifier {
	v := &AdminKeyVerifier{cookieSecret: []byte(cookieSecret)}
	v.expected = v.Digest(adminKey)
	return v
}

// Digest returns the hex HMAC-SHA256 of key under the cookie secret.
func (v *AdminKeyVerifier) Digest(key string) string {
	mac := hmac.New(sha256.New, v.cookieSecret)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyKey checks a presented admin key at login time.
func (v *AdminKeyVerifier) VerifyKey(presented string) bool {
	return v.VerifyDigest(v.Digest(presented))
}

// VerifyDigest checks a previously issued digest (the cookie value).
func (v *AdminKeyVerifier) VerifyDigest(digest string) bool {
	a, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	b, err := hex.DecodeString(v.expected)
	if err != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
