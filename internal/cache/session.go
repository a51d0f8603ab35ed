package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kyleking/gh-actionboard/internal/api"
)

// UserInfoKey is the session slot holding the signed-in user.
const UserInfoKey = "gh_user_info"

// UserCache keeps the signed-in user's info in the session store. Entries
// are bound to the token they were resolved with; a different token never
// sees them.
type UserCache struct {
	store       Store
	fingerprint string
}

type cachedUser struct {
	TokenHash string       `json:"tokenHash"`
	User      api.UserInfo `json:"user"`
}

// NewUserCache creates a user cache over a session store for token.
func NewUserCache(store Store, token string) *UserCache {
	return &UserCache{store: store, fingerprint: TokenFingerprint(token)}
}

// TokenFingerprint returns the hex SHA-256 of a token.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached user when an authenticated one was stored for the
// same token.
func (c *UserCache) Get() (*api.UserInfo, bool) {
	data, ok, err := c.store.Get(UserInfoKey)
	if err != nil || !ok {
		return nil, false
	}
	var entry cachedUser
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.TokenHash != c.fingerprint || !entry.User.Authenticated {
		return nil, false
	}
	return &entry.User, true
}

// Save stores an authenticated user. Unauthenticated info is ignored.
func (c *UserCache) Save(info *api.UserInfo) error {
	if info == nil || !info.Authenticated {
		return nil
	}
	data, err := json.Marshal(cachedUser{TokenHash: c.fingerprint, User: *info})
	if err != nil {
		return fmt.Errorf("failed to encode user info: %w", err)
	}
	return c.store.Set(UserInfoKey, data)
}

// Clear removes the cached user.
func (c *UserCache) Clear() error {
	return c.store.Clear(UserInfoKey)
}

// Logout removes every workflow snapshot from durable and the user slot from
// session. Every key is attempted; the errors are joined.
func Logout(durable, session Store) error {
	keys, err := durable.Keys(KeyPrefix + "_")
	if err != nil {
		return fmt.Errorf("failed to list workflow caches: %w", err)
	}

	var errs []error
	for _, k := range keys {
		if err := durable.Clear(k); err != nil {
			errs = append(errs, err)
		}
	}
	if session != nil {
		if err := session.Clear(UserInfoKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
