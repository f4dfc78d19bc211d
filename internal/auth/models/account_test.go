package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "unionregistry/pkg/domain-errors"
)

func TestCreateProfileRequestValidate(t *testing.T) {
	valid := CreateProfileRequest{DealerID: "d", Username: " Pump-7 ", Email: "pump7@example.com"}
	require.NoError(t, valid.Validate())

	cases := map[string]CreateProfileRequest{
		"missing dealer":  {Username: "pump7"},
		"short username":  {DealerID: "d", Username: "ab"},
		"spaces":          {DealerID: "d", Username: "pump 7"},
		"malformed email": {DealerID: "d", Username: "pump7", Email: "nope"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeValidation))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("long-enough"))
	assert.Error(t, ValidatePassword("short"))
	assert.Error(t, ValidatePassword(strings.Repeat("x", 73)))
}

func TestEnableTOTPTransitions(t *testing.T) {
	acc := &Account{Username: "pump7", Role: RoleDealer}
	assert.True(t, dErrors.HasCode(acc.CanEnableTOTP(), dErrors.CodeInvalidState))

	acc.TOTPSecret = "JBSWY3DPEHPK3PXP"
	require.NoError(t, acc.CanEnableTOTP())
	acc.ApplyTOTPEnabled(time.Now())
	assert.True(t, acc.TOTPEnabled)
	assert.True(t, dErrors.HasCode(acc.CanEnableTOTP(), dErrors.CodeInvalidState))
}
