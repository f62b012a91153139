// Package forgotpin implements the three-step owner PIN recovery flow:
// request an OTP by menu code, verify the OTP for a short-lived reset
// token, then exchange the token for a new PIN. Flow state lives in redis
// and expires on its own; only SHA-256 digests of the OTP and reset token
// are ever stored.
package forgotpin

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordTTL   = 10 * time.Minute
	maxAttempts = 3

	keyPrefix = "fp:"
)

var (
	errNoRecord            = errors.New("no reset record")
	errFingerprintMismatch = errors.New("fingerprint mismatch")
	errOTPMismatch         = errors.New("otp mismatch")
	errAttemptsExhausted   = errors.New("attempts exhausted")
)

// record is the redis-persisted state of one in-flight recovery. At most
// one record exists per menu code; a new request replaces any prior one.
type record struct {
	OTPHash           string    `json:"otp_hash"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	Fingerprint       string    `json:"fingerprint"`
	ResetTokenHash    string    `json:"reset_token_hash,omitempty"`
	Verified          bool      `json:"verified"`
}

type recordStore struct {
	rdb redis.UniversalClient
}

func key(code string) string { return keyPrefix + code }

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (s *recordStore) put(ctx context.Context, code string, rec *record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reset record: %w", err)
	}
	if err := s.rdb.Set(ctx, key(code), data, ttl).Err(); err != nil {
		return fmt.Errorf("store reset record: %w", err)
	}
	return nil
}

// get returns nil with no error when no record exists.
func (s *recordStore) get(ctx context.Context, code string) (*record, error) {
	data, err := s.rdb.Get(ctx, key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load reset record: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode reset record: %w", err)
	}
	return &rec, nil
}

func (s *recordStore) delete(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, key(code)).Err(); err != nil {
		return fmt.Errorf("delete reset record: %w", err)
	}
	return nil
}

// consumeAttempt runs the OTP comparison inside a WATCH transaction so
// concurrent guesses share one attempt budget. A match stores the token
// digest and marks the record verified; a miss burns an attempt, deleting
// the record once none remain. The TTL is recomputed from the record's
// own expiry so rewrites never extend the window.
func (s *recordStore) consumeAttempt(ctx context.Context, code string, now time.Time, otpDigest, fingerprint, tokenDigest string) (int, error) {
	const maxRetries = 4
	k := key(code)

	for i := 0; i < maxRetries; i++ {
		remaining := 0

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, k).Bytes()
			if err != nil {
				return err
			}
			var rec record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode reset record: %w", err)
			}

			if now.After(rec.ExpiresAt) {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, k)
					return nil
				})
				if err != nil {
					return err
				}
				return errNoRecord
			}

			if rec.Fingerprint != fingerprint {
				return errFingerprintMismatch
			}

			if subtle.ConstantTimeCompare([]byte(otpDigest), []byte(rec.OTPHash)) != 1 {
				rec.AttemptsRemaining--
				if rec.AttemptsRemaining <= 0 {
					_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, k)
						return nil
					})
					if err != nil {
						return err
					}
					return errAttemptsExhausted
				}

				updated, err := json.Marshal(&rec)
				if err != nil {
					return fmt.Errorf("marshal reset record: %w", err)
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, k, updated, rec.ExpiresAt.Sub(now))
					return nil
				})
				if err != nil {
					return err
				}
				remaining = rec.AttemptsRemaining
				return errOTPMismatch
			}

			rec.Verified = true
			rec.ResetTokenHash = tokenDigest
			updated, err := json.Marshal(&rec)
			if err != nil {
				return fmt.Errorf("marshal reset record: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, updated, rec.ExpiresAt.Sub(now))
				return nil
			})
			return err
		}, k)

		switch {
		case err == nil:
			return remaining, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return 0, errNoRecord
		default:
			return remaining, err
		}
	}

	return 0, errNoRecord
}
