// Package crypto provides password hashing and the TOTP helpers behind two-factor login.
package crypto

import (
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/xlzd/gotp"
	"golang.org/x/crypto/bcrypt"
)

const totpIssuer = "Marquee"

// HashPasswordAsBcrypt generates a salted bcrypt hash of the given password.
func HashPasswordAsBcrypt(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPasswordHash verifies if the given password matches the bcrypt hash.
func CheckPasswordHash(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NewTwoFactorSecret returns a fresh base32 TOTP secret.
func NewTwoFactorSecret() string {
	return gotp.RandomSecret(16)
}

// CheckTwoFactorCode accepts the code of the current 30s step or the one before it,
// so a code typed right at the boundary still works.
func CheckTwoFactorCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	totp := gotp.NewDefaultTOTP(secret)
	now := time.Now()
	return totp.At(now.Unix()) == code || totp.At(now.Add(-30*time.Second).Unix()) == code
}

// TwoFactorQRCode renders the otpauth:// provisioning URI for account as a PNG.
func TwoFactorQRCode(secret, account string) ([]byte, error) {
	uri := gotp.NewDefaultTOTP(secret).ProvisioningUri(account, totpIssuer)
	return qrcode.Encode(uri, qrcode.Medium, 256)
}
