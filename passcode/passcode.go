// Package passcode generates and verifies the short shared secrets teams use
// to re-join an existing instance.
package passcode

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"os"

	"golang.org/x/crypto/bcrypt"
)

const Length = 8

var alphabet = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// cost returns the bcrypt cost factor. Outside production the minimum cost is
// used so that tests and local joins stay fast.
func cost() int {
	if os.Getenv("BALANCER_ENV") == "production" {
		return bcrypt.DefaultCost
	}
	return bcrypt.MinCost
}

// Generate produces a random 8-character uppercase alphanumeric passcode and
// its bcrypt hash. The plaintext is returned to the caller exactly once.
func Generate() (string, string, error) {
	b := make([]rune, Length)
	for i := range b {
		r, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", "", err
		}
		b[i] = alphabet[r.Int64()]
	}

	code := string(b)
	hash, err := bcrypt.GenerateFromPassword([]byte(code), cost())
	if err != nil {
		return "", "", err
	}

	return code, string(hash), nil
}

// Verify compares a supplied passcode against a stored hash. Any mismatch or
// malformed input is reported as false, never as an error.
func Verify(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// RandomSeed returns a random hex string used to salt per-instance secrets.
func RandomSeed() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
