package authn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_EmptyRejected(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestHashPassword_RoundTripsThroughCheckPassword(t *testing.T) {
	hash, err := HashPassword("Correct-Horse9")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct-Horse9", hash)

	assert.NoError(t, CheckPassword("Correct-Horse9", hash))
	assert.ErrorIs(t, CheckPassword("wrong-password1", hash), ErrInvalidPassword)
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"too short", "Ab1", true},
		{"no upper", "lowercase1", true},
		{"no lower", "UPPERCASE1", true},
		{"no digit", "NoDigitsHere", true},
		{"too long", string(make([]byte, 73)), true},
		{"valid", "ValidPass1", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidatePasswordStrength(c.password)
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
