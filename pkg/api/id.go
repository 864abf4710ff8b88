package api

import (
	"crypto/rand"
	"math/big"
	"regexp"

	"github.com/google/uuid"
)

const (
	// EnvironmentNameLength is the length of generated environment names.
	EnvironmentNameLength = 16

	generationIDLength = 12
	charset            = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	generationIDPrefix = "gen_"
)

var (
	environmentNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{16}$`)
	generationIDPattern    = regexp.MustCompile(`^gen_[a-zA-Z0-9]{12}$`)
)

// NewRunID returns a new run identifier (a random UUID).
func NewRunID() string {
	return uuid.NewString()
}

// ValidateRunID reports whether id parses as a UUID.
func ValidateRunID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewEnvironmentName returns a random alphanumeric name of
// EnvironmentNameLength characters, used for sandbox environments
// created without an explicit name.
func NewEnvironmentName() string {
	return randomAlphanumeric(EnvironmentNameLength)
}

// ValidateEnvironmentName reports whether name has the generated form.
func ValidateEnvironmentName(name string) bool {
	return environmentNamePattern.MatchString(name)
}

// NewGenerationID returns an identifier for one generation attempt.
func NewGenerationID() string {
	return generationIDPrefix + randomAlphanumeric(generationIDLength)
}

// ValidateGenerationID reports whether id has the "gen_" form.
func ValidateGenerationID(id string) bool {
	return generationIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
