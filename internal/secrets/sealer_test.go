package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newSealer(t *testing.T) *AgeSealer {
	t.Helper()
	identity, err := GenerateIdentity()
	require.NoError(t, err)
	s, err := NewAgeSealer(identity)
	require.NoError(t, err)
	return s
}

func TestAgeSealerRoundTrip(t *testing.T) {
	t.Parallel()

	s := newSealer(t)
	sealed, err := s.Seal("app-password-123")
	require.NoError(t, err)
	require.True(t, IsSealed(sealed))
	require.NotContains(t, sealed, "app-password-123")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "app-password-123", opened)
}

func TestAgeSealerProperties(t *testing.T) {
	s := newSealer(t)
	rapid.Check(t, func(t *rapid.T) {
		plaintext := rapid.String().Draw(t, "plaintext")
		sealed, err := s.Seal(plaintext)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		opened, err := s.Open(sealed)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if opened != plaintext {
			t.Fatalf("round trip mismatch: %q != %q", opened, plaintext)
		}
	})
}

func TestAgeSealerPassesPlaintextThrough(t *testing.T) {
	t.Parallel()

	s := newSealer(t)
	opened, err := s.Open("legacy-plaintext")
	require.NoError(t, err)
	require.Equal(t, "legacy-plaintext", opened)
}

func TestWrongIdentityCannotOpen(t *testing.T) {
	t.Parallel()

	sealed, err := newSealer(t).Seal("secret")
	require.NoError(t, err)

	_, err = newSealer(t).Open(sealed)
	require.Error(t, err)

	_, err = PlainSealer{}.Open(sealed)
	require.Error(t, err)
}

func TestNewAgeSealerRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := NewAgeSealer("not-a-key")
	require.Error(t, err)

	_, err = newSealer(t).Open("age:" + strings.Repeat("!", 8))
	require.Error(t, err)
}
