package forgotpin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/models"
)

const ownerEmail = "owner@bluelagoon.example"

type fakeTenants struct {
	byCode map[string]*models.Hotel
}

func (f *fakeTenants) FindByCode(_ context.Context, code string) (*models.Hotel, error) {
	h, ok := f.byCode[code]
	if !ok {
		return nil, apperr.NotFound("hotel not found")
	}
	return h, nil
}

type fakeResetter struct {
	setID  uuid.UUID
	setPin string
}

func (f *fakeResetter) SetPin(_ context.Context, id uuid.UUID, pin string) error {
	f.setID = id
	f.setPin = pin
	return nil
}

type fakeSender struct {
	email string
	otp   string
	sent  int
}

func (f *fakeSender) SendOTP(_ context.Context, email, _ string, otp string) error {
	f.email = email
	f.otp = otp
	f.sent++
	return nil
}

func newTestFlow(t *testing.T) (*Flow, *miniredis.Miniredis, *fakeTenants, *fakeResetter, *fakeSender) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	email := ownerEmail
	tenants := &fakeTenants{byCode: map[string]*models.Hotel{
		"ABCDEF": {ID: uuid.New(), Code: "ABCDEF", Status: models.StatusActive, Email: &email},
	}}
	resetter := &fakeResetter{}
	sender := &fakeSender{}
	flow := NewFlow(rdb, tenants, resetter, sender, zap.NewNop())
	return flow, mr, tenants, resetter, sender
}

func TestRequestSendsOTP(t *testing.T) {
	flow, mr, _, _, sender := newTestFlow(t)

	require.NoError(t, flow.Request(context.Background(), "abcdef", ownerEmail, "fp-1"))
	require.Equal(t, 1, sender.sent)
	require.Equal(t, ownerEmail, sender.email)
	require.Len(t, sender.otp, otpDigits)

	// Only the digest is persisted.
	stored, err := mr.Get("fp:ABCDEF")
	require.NoError(t, err)
	require.NotContains(t, stored, sender.otp)
}

func TestRequestDoesNotLeakExistence(t *testing.T) {
	flow, _, tenants, _, sender := newTestFlow(t)
	ctx := context.Background()

	// Unknown code, wrong email and a tenant with no email all succeed
	// without dispatching anything.
	require.NoError(t, flow.Request(ctx, "ZZZZZZ", ownerEmail, "fp-1"))
	require.NoError(t, flow.Request(ctx, "ABCDEF", "someone@else.example", "fp-1"))

	tenants.byCode["ABCDEF"].Email = nil
	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	require.Equal(t, 0, sender.sent)
}

func TestRequestValidatesInput(t *testing.T) {
	flow, _, _, _, _ := newTestFlow(t)
	ctx := context.Background()

	err := flow.Request(ctx, "not-a-code", ownerEmail, "fp-1")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = flow.Request(ctx, "ABCDEF", "", "fp-1")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerifyAndResetRoundtrip(t *testing.T) {
	flow, _, tenants, resetter, sender := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	token, err := flow.Verify(ctx, "ABCDEF", sender.otp, "fp-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, flow.Reset(ctx, "ABCDEF", token, "59273841", "fp-1"))
	require.Equal(t, tenants.byCode["ABCDEF"].ID, resetter.setID)
	require.Equal(t, "59273841", resetter.setPin)

	// Token is single use.
	err = flow.Reset(ctx, "ABCDEF", token, "40271395", "fp-1")
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestVerifyRejectsForeignFingerprint(t *testing.T) {
	flow, _, _, _, sender := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	// Correct OTP from another device is refused and does not burn an
	// attempt.
	_, err := flow.Verify(ctx, "ABCDEF", sender.otp, "fp-2")
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	token, err := flow.Verify(ctx, "ABCDEF", sender.otp, "fp-1")
	require.NoError(t, err)

	// The reset token cannot be redeemed from another device either.
	err = flow.Reset(ctx, "ABCDEF", token, "59273841", "fp-2")
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestVerifyWrongOTPExhaustsAttempts(t *testing.T) {
	flow, _, _, _, sender := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	wrong := "000000"
	if sender.otp == wrong {
		wrong = "000001"
	}

	for i := 0; i < maxAttempts-1; i++ {
		_, err := flow.Verify(ctx, "ABCDEF", wrong, "fp-1")
		require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	}

	// Final miss burns the record.
	_, err := flow.Verify(ctx, "ABCDEF", wrong, "fp-1")
	require.Equal(t, apperr.KindExhausted, apperr.KindOf(err))

	// Even the correct OTP no longer works.
	_, err = flow.Verify(ctx, "ABCDEF", sender.otp, "fp-1")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestVerifyConcurrentGuessesShareAttemptBudget(t *testing.T) {
	flow, _, _, _, sender := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	wrong := "000000"
	if sender.otp == wrong {
		wrong = "000001"
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[apperr.Kind]int{}
	for i := 0; i < 2*maxAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := flow.Verify(ctx, "ABCDEF", wrong, "fp-1")
			mu.Lock()
			counts[apperr.KindOf(err)]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Only maxAttempts guesses can spend an attempt no matter how they
	// interleave: at most maxAttempts-1 see a remaining count and at most
	// one burns the record.
	require.LessOrEqual(t, counts[apperr.KindUnauthorized], maxAttempts-1)
	require.LessOrEqual(t, counts[apperr.KindExhausted], 1)
}

func TestVerifyExpiredRecord(t *testing.T) {
	flow, mr, _, _, sender := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	mr.FastForward(recordTTL + time.Second)

	_, err := flow.Verify(ctx, "ABCDEF", sender.otp, "fp-1")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestResetWithoutVerify(t *testing.T) {
	flow, _, _, _, _ := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	err := flow.Reset(ctx, "ABCDEF", "not-a-token", "59273841", "fp-1")
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestNewRequestReplacesOldOTP(t *testing.T) {
	flow, _, _, _, sender := newTestFlow(t)
	ctx := context.Background()

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))
	first := sender.otp

	require.NoError(t, flow.Request(ctx, "ABCDEF", ownerEmail, "fp-1"))

	if first != sender.otp {
		_, err := flow.Verify(ctx, "ABCDEF", first, "fp-1")
		require.Error(t, err)
	}
	token, err := flow.Verify(ctx, "ABCDEF", sender.otp, "fp-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
