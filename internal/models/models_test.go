package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAndValidateToken(t *testing.T) {
	valid := strings.Repeat("AB12", 16)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "canonical", raw: valid},
		{name: "lower case is folded", raw: strings.ToLower(valid)},
		{name: "surrounding whitespace", raw: "  " + valid + "\n"},
		{name: "full width digits", raw: strings.Repeat("AB１２", 16)},
		{name: "too short", raw: valid[:63], wantErr: true},
		{name: "too long", raw: valid + "A", wantErr: true},
		{name: "punctuation", raw: valid[:63] + "-", wantErr: true},
		{name: "inner space", raw: valid[:32] + " " + valid[33:], wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(NormalizeToken(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTokenFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	token := strings.Repeat("A", 60) + "WXYZ"
	masked := MaskToken(token)

	assert.Len(t, masked, 64)
	assert.True(t, strings.HasPrefix(masked, "AAAA"))
	assert.True(t, strings.HasSuffix(masked, "WXYZ"))
	assert.Equal(t, "***", MaskToken("abc"))
}

func TestUserValidate(t *testing.T) {
	u := NewUser(42)
	assert.NoError(t, u.Validate())
	assert.False(t, u.HasToken())

	u.ConversationState = "waiting"
	assert.ErrorIs(t, u.Validate(), ErrInvalidState)

	u.ConversationState = StateAwaitingToken
	bad := "not-a-token"
	u.AccessToken = &bad
	assert.ErrorIs(t, u.Validate(), ErrTokenFormat)

	good := strings.Repeat("Z9", 32)
	u.AccessToken = &good
	assert.NoError(t, u.Validate())
	assert.Equal(t, good, u.Token())
}

func TestResumeWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &Resume{ResumeID: "abc", OwnerNotified: true}

	r.Activate(now, DefaultRenewalPeriod)
	assert.True(t, r.IsActive(now))
	assert.False(t, r.OwnerNotified)
	assert.Equal(t, now.Add(7*24*time.Hour), r.ValidUntil)
	assert.False(t, r.IsActive(now.Add(8*24*time.Hour)), "flag alone must not keep an expired window active")

	r.Deactivate()
	assert.False(t, r.IsActive(now))
	assert.Equal(t, now.Add(7*24*time.Hour), r.ValidUntil, "deactivation keeps the window")
}
