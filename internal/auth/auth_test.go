package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestIssueAndVerify(t *testing.T) {
	token, err := IssueToken(secret, "u1", time.Hour)
	require.NoError(t, err)

	owner, err := VerifyToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	_, err = VerifyToken([]byte("other"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_Expired(t *testing.T) {
	token, err := IssueToken(secret, "u1", -time.Minute)
	require.NoError(t, err)
	// Negative ttl means no expiry.
	_, err = VerifyToken(secret, token)
	require.NoError(t, err)

	token, err = IssueToken(secret, "u1", time.Nanosecond)
	require.NoError(t, err)
	_, err = VerifyToken(secret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueToken_Errors(t *testing.T) {
	_, err := IssueToken(secret, "", time.Hour)
	assert.Error(t, err)
	_, err = IssueToken(nil, "u1", time.Hour)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.want, got, tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
	}
}

func TestResolve(t *testing.T) {
	token, err := IssueToken(secret, "u1", 0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		owner   string
		token   string
		want    string
		wantErr bool
	}{
		{"owner only", "u2", "", "u2", false},
		{"token only", "", token, "u1", false},
		{"matching", "u1", token, "u1", false},
		{"mismatch", "u2", token, "", true},
		{"nothing", " ", "", "", true},
		{"garbage token", "", "not-a-jwt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.owner, tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = Resolve("", "")
	assert.ErrorIs(t, err, ErrNoOwner)
}
