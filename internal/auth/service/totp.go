package service

import (
	"context"
	"encoding/base32"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/requestcontext"
)

const totpIssuer = "Kashmir Valley Tank Owners"

// totpOpts accepts codes up to two periods either side of now.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      2,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// EnableTOTP turns on two-factor for username once a code from the
// provisioned secret verifies.
func (s *Service) EnableTOTP(ctx context.Context, username, code string) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.loadAccount(ctx, username)
		if err != nil {
			return err
		}
		if err := account.CanEnableTOTP(); err != nil {
			return err
		}
		if !validCode(ctx, account.TOTPSecret, code) {
			return errInvalidCode
		}
		account.ApplyTOTPEnabled(requestcontext.Now(ctx))
		if err := s.accounts.Update(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enable two-factor authentication")
		}
		return s.audit.Record(ctx, account.Username, audit.ActionUpdate, entityOf(account), account.ID.String(), map[string]any{
			"change": "totp_enabled",
		})
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "totp_enabled", "username", username)
	return nil
}

// TOTPSetup returns the otpauth:// URI for enrolling an authenticator app.
func (s *Service) TOTPSetup(ctx context.Context, username string) (string, error) {
	account, err := s.loadAccount(ctx, username)
	if err != nil {
		return "", err
	}
	if account.TOTPSecret == "" {
		return "", dErrors.New(dErrors.CodeInvalidState, "two-factor authentication is not provisioned")
	}
	return provisioningURI(account.Username, account.TOTPSecret)
}

func newTOTPKey(username string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate totp secret")
	}
	return key, nil
}

// provisioningURI rebuilds the enrolment URI from a stored base32 secret.
func provisioningURI(username, secret string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "stored totp secret is malformed")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
		Secret:      raw,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to build totp uri")
	}
	return key.URL(), nil
}

func validCode(ctx context.Context, secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, requestcontext.Now(ctx), totpOpts)
	return err == nil && ok
}
