package services

import (
	"context"
	"errors"
	"strings"

	"github.com/charlesng35/authinvite/pkg/crypto"
)

const (
	usernameDigits   = 6
	usernameMaxTries = 10
)

// UsernameLookup reports whether a username is already taken.
type UsernameLookup interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// UsernameGenerator produces unused usernames of the form <prefix><6 digits>.
type UsernameGenerator struct {
	users  UsernameLookup
	prefix string
	digits func(width int) (string, error)
}

// NewUsernameGenerator constructs a UsernameGenerator. An empty prefix falls back to "inviteduser".
func NewUsernameGenerator(users UsernameLookup, prefix string) (*UsernameGenerator, error) {
	if users == nil {
		return nil, errors.New("username generator: user lookup is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPluginConfig().UsernamePrefix
	}
	return &UsernameGenerator{users: users, prefix: prefix, digits: crypto.RandomDigits}, nil
}

// Generate returns a free username or ErrUsernameExhausted after a bounded number of collisions.
func (g *UsernameGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < usernameMaxTries; i++ {
		suffix, err := g.digits(usernameDigits)
		if err != nil {
			return "", err
		}
		candidate := g.prefix + suffix
		taken, err := g.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrUsernameExhausted
}
