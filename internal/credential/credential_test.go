package credential

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/models"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	s := NewStore()

	hash, err := s.Hash("59273841")
	require.NoError(t, err)
	require.NotEqual(t, "59273841", hash)

	require.True(t, s.Verify("59273841", hash))
	require.False(t, s.Verify("59273842", hash))
	require.False(t, s.Verify("", hash))
}

func TestVerifyInvalidatedSentinelNeverMatches(t *testing.T) {
	s := NewStore()
	require.False(t, s.Verify("59273841", models.PinHashInvalidated))
	require.False(t, s.Verify(models.PinHashInvalidated, models.PinHashInvalidated))
	require.False(t, s.Verify("59273841", "not-a-bcrypt-hash"))
}

func TestCheckPinStrength(t *testing.T) {
	rejected := []string{
		"11111111",
		"00000000",
		"12345678",
		"87654321",
		"78901234", // ascending with wrap
		"12341234",
		"56565656",
	}
	for _, pin := range rejected {
		err := CheckPinStrength(pin)
		require.Error(t, err, "expected %s to be rejected", pin)
		require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}

	require.NoError(t, CheckPinStrength("59273841"))
	require.NoError(t, CheckPinStrength("40271395"))
}

func TestValidatePinFormat(t *testing.T) {
	require.Error(t, ValidatePinFormat("1234567"))
	require.Error(t, ValidatePinFormat("123456789"))
	require.Error(t, ValidatePinFormat("1234567a"))
	require.NoError(t, ValidatePinFormat("59273841"))
}

func TestGeneratePinIsStrong(t *testing.T) {
	for i := 0; i < 50; i++ {
		pin, err := GeneratePin()
		require.NoError(t, err)
		require.NoError(t, CheckPinStrength(pin))
	}
}

func TestAdminKeyVerifier(t *testing.T) {
	v := NewAdminKeyVerifier("the-admin-key", "the-cookie-secret")

	require.True(t, v.VerifyKey("the-admin-key"))
	require.False(t, v.VerifyKey("the-admin-keY"))
	require.False(t, v.VerifyKey(""))

	digest := v.Digest("the-admin-key")
	require.True(t, v.VerifyDigest(digest))
	require.False(t, v.VerifyDigest("deadbeef"))
	require.False(t, v.VerifyDigest("zz-not-hex"))

	// A different cookie secret yields a different, non-verifying digest.
	other := NewAdminKeyVerifier("the-admin-key", "other-secret")
	require.False(t, v.VerifyDigest(other.Digest("the-admin-key")))
}
