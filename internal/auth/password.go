package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest password Register accepts.
	MinPasswordLength = 6
	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72

	bcryptCost = 10
)

// checkPassword enforces the registration policy on a plaintext password.
func checkPassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > maxPasswordBytes {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks a login attempt against the stored hash. Any
// mismatch surfaces to callers as ErrInvalidCredentials.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
