package security

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash suitable for websocket.password_hash.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// CheckBasicAuth validates HTTP basic auth credentials against a username
// and bcrypt hash. An empty username disables authentication.
func CheckBasicAuth(wantUser, wantHash, user, pw string, ok bool) bool {
	if wantUser == "" {
		return true
	}
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	return CheckPassword(wantHash, pw) && userOK
}
