package util

import (
	"golang.org/x/crypto/bcrypt"
)

// pinHashCost keeps PIN verification fast enough for on-device retry loops
// while staying a deliberately slow hash.
const pinHashCost = 10

// HashPin hashes a 4-digit PIN with bcrypt. Each hash carries its own
// random salt; the stored hash never leaves the service layer.
func HashPin(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), pinHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPin reports whether pin matches the stored bcrypt hash.
func CheckPin(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
