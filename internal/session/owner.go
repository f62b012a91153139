// Package session implements the two actor verification strategies: signed
// bearer tokens for tenant owners and an HMAC cookie for the super-admin.
// They model different threats (API bearer clients vs. CSRF-prone browser
// cookies) and are deliberately kept separate.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/models"
)

const ownerTokenType = "owner"

type OwnerClaims struct {
	HotelID string `json:"hotel_id"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	jwt.RegisteredClaims
}

// OwnerSession is the verified identity attached to owner requests.
type OwnerSession struct {
	HotelID uuid.UUID
	Code    string
}

// TenantLookup is the live status check run on every verification.
type TenantLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error)
}

type OwnerIssuer struct {
	secret  []byte
	ttl     time.Duration
	tenants TenantLookup
	now     func() time.Time
}

func NewOwnerIssuer(secret string, ttl time.Duration, tenants TenantLookup) *OwnerIssuer {
	return &OwnerIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		tenants: tenants,
		now:     time.Now,
	}
}

// WithClock substitutes the time source. Used by tests.
func (i *OwnerIssuer) WithClock(now func() time.Time) *OwnerIssuer {
	i.now = now
	return i
}

// Issue signs a time-boxed token for the hotel owner.
func (i *OwnerIssuer) Issue(h *models.Hotel) (string, error) {
	now := i.now()
	claims := OwnerClaims{
		HotelID: h.ID.String(),
		Code:    h.Code,
		Type:    ownerTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign owner token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, type and expiry, then the tenant's live status.
// SUSPENDED yields Forbidden; DELETED yields the same Unauthorized as a bad
// token so token holders learn nothing about a tenant's existence.
func (i *OwnerIssuer) Verify(ctx context.Context, tokenStr string) (*OwnerSession, error) {
	claims := &OwnerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorized()
	}

	if claims.Type != ownerTokenType {
		return nil, apperr.Unauthorized()
	}

	hotelID, err := uuid.Parse(claims.HotelID)
	if err != nil {
		return nil, apperr.Unauthorized()
	}

	hotel, err := i.tenants.FindByID(ctx, hotelID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthorized()
		}
		return nil, apperr.Internal(err)
	}

	switch hotel.Status {
	case models.StatusSuspended:
		return nil, apperr.Forbidden("account suspended")
	case models.StatusDeleted:
		return nil, apperr.Unauthorized()
	}

	return &OwnerSession{HotelID: hotelID, Code: claims.Code}, nil
}
