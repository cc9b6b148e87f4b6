package password

import (
	"golang.org/x/crypto/bcrypt"
)

// CodeCost is the bcrypt cost for short-lived verification codes
const CodeCost = 10

// HashCode hashes a one-time code using bcrypt
func HashCode(code string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(code), CodeCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify compares a plaintext value with a bcrypt hash
func Verify(plain, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}
