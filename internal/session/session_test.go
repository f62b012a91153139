package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/credential"
	"github.com/tablecode/tablecode/internal/models"
)

type fakeLookup struct {
	hotels map[uuid.UUID]*models.Hotel
}

func (f *fakeLookup) FindByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error) {
	h, ok := f.hotels[id]
	if !ok {
		return nil, apperr.NotFound("hotel not found")
	}
	return h, nil
}

func newHotel(status models.Status) *models.Hotel {
	return &models.Hotel{
		ID:     uuid.New(),
		Code:   "ABCD27",
		Status: status,
	}
}

func TestOwnerTokenRoundtrip(t *testing.T) {
	h := newHotel(models.StatusActive)
	lookup := &fakeLookup{hotels: map[uuid.UUID]*models.Hotel{h.ID: h}}
	issuer := NewOwnerIssuer("secret", 24*time.Hour, lookup)

	token, err := issuer.Issue(h)
	require.NoError(t, err)

	sess, err := issuer.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, h.ID, sess.HotelID)
	require.Equal(t, "ABCD27", sess.Code)
}

func TestOwnerTokenExpired(t *testing.T) {
	h := newHotel(models.StatusActive)
	lookup := &fakeLookup{hotels: map[uuid.UUID]*models.Hotel{h.ID: h}}

	now := time.Now()
	issuer := NewOwnerIssuer("secret", time.Hour, lookup).WithClock(func() time.Time { return now })

	token, err := issuer.Issue(h)
	require.NoError(t, err)

	// Advance past expiry.
	issuer.WithClock(func() time.Time { return now.Add(2 * time.Hour) })

	_, err = issuer.Verify(context.Background(), token)
	require.Error(t, err)
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestOwnerTokenSuspendedAndDeletedOutcomes(t *testing.T) {
	h := newHotel(models.StatusActive)
	lookup := &fakeLookup{hotels: map[uuid.UUID]*models.Hotel{h.ID: h}}
	issuer := NewOwnerIssuer("secret", 24*time.Hour, lookup)

	token, err := issuer.Issue(h)
	require.NoError(t, err)

	h.Status = models.StatusSuspended
	_, err = issuer.Verify(context.Background(), token)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// DELETED is indistinguishable from a bad token.
	h.Status = models.StatusDeleted
	_, err = issuer.Verify(context.Background(), token)
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	delete(lookup.hotels, h.ID)
	_, err = issuer.Verify(context.Background(), token)
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestOwnerTokenWrongSecretOrGarbage(t *testing.T) {
	h := newHotel(models.StatusActive)
	lookup := &fakeLookup{hotels: map[uuid.UUID]*models.Hotel{h.ID: h}}

	token, err := NewOwnerIssuer("secret-a", 24*time.Hour, lookup).Issue(h)
	require.NoError(t, err)

	verifier := NewOwnerIssuer("secret-b", 24*time.Hour, lookup)
	_, err = verifier.Verify(context.Background(), token)
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = verifier.Verify(context.Background(), "not-a-token")
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestAdminSessionLoginAndVerify(t *testing.T) {
	verifier := credential.NewAdminKeyVerifier("admin-key", "cookie-secret")
	var slept time.Duration
	admin := NewAdminSession(verifier).WithSleep(func(d time.Duration) { slept = d })

	cookie, err := admin.Login("admin-key")
	require.NoError(t, err)
	require.NoError(t, admin.VerifyCookie(cookie))

	_, err = admin.Login("wrong-key")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	require.GreaterOrEqual(t, slept, 500*time.Millisecond)

	require.Error(t, admin.VerifyCookie(""))
	require.Error(t, admin.VerifyCookie("deadbeef"))
}
