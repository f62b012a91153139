package slug

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
)

type fakeChecker struct {
	exists bool
	calls  int
}

func (f *fakeChecker) CodeExists(ctx context.Context, code string) (bool, error) {
	f.calls++
	return f.exists, nil
}

func TestGenerateMatchesPattern(t *testing.T) {
	g := NewGenerator(&fakeChecker{}, zap.NewNop())

	for i := 0; i < 200; i++ {
		code, err := g.Generate(context.Background())
		require.NoError(t, err)
		require.Len(t, code, Length)
		require.NoError(t, Validate(code))
		for _, c := range code {
			require.Contains(t, Alphabet, string(c))
		}
	}
}

func TestValidateRejectsMutations(t *testing.T) {
	g := NewGenerator(&fakeChecker{}, zap.NewNop())
	code, err := g.Generate(context.Background())
	require.NoError(t, err)

	require.Error(t, Validate(strings.ToLower(code)))
	require.Error(t, Validate(code[:Length-1]))
	require.Error(t, Validate(code+"A"))
	require.Error(t, Validate("0"+code[1:])) // 0 is outside the alphabet
	require.Error(t, Validate("1"+code[1:]))
}

func TestGenerateExhaustsAfterConfiguredAttempts(t *testing.T) {
	checker := &fakeChecker{exists: true}
	g := NewGenerator(checker, zap.NewNop()).WithMaxAttempts(10)

	_, err := g.Generate(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.KindExhausted, apperr.KindOf(err))
	require.Equal(t, 10, checker.calls)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "ABCD27", Normalize("  abcd27 "))
}
