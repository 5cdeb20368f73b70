package service

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 10

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// bcryptPattern matches the modular-crypt bcrypt encoding: version tag,
// two-digit cost, then 22 salt and 31 hash characters.
var bcryptPattern = regexp.MustCompile(`^\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}$`)

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost    int
	dummy   []byte
	compare func(hash, plaintext []byte) error
}

// NewPasswordHasher returns a hasher using cost, or DefaultBcryptCost when
// cost is zero.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	// Compared against when a login names an unknown user so the miss takes
	// as long as a wrong password.
	dummy, err := bcrypt.GenerateFromPassword([]byte("skywatch:no-such-user"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &PasswordHasher{cost: cost, dummy: dummy, compare: bcrypt.CompareHashAndPassword}, nil
}

// Cost returns the work factor new hashes are created with.
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether hash was produced from plaintext. Values that are
// not bcrypt hashes never verify, and still cost one full comparison so a
// legacy plaintext record fails as slowly as a real mismatch.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	if !LooksHashed(hash) {
		h.burn(plaintext)
		return false
	}
	return h.compare([]byte(hash), []byte(plaintext)) == nil
}

// burn performs a comparison that always fails.
func (h *PasswordHasher) burn(plaintext string) {
	_ = h.compare(h.dummy, []byte(plaintext))
}

// LooksHashed reports whether value is already a bcrypt hash.
func LooksHashed(value string) bool {
	return bcryptPattern.MatchString(value)
}
