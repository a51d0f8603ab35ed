package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/github"
)

type sessionKey struct{}

// session is the authenticated caller of a request.
type session struct {
	token   string
	user    github.APIUser
	billing billing.Config
	gh      *github.Client
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

// bearerToken extracts the credential from "Bearer <t>" or "token <t>".
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return strings.TrimSpace(token)
	default:
		return ""
	}
}

type cachedUser struct {
	user    github.APIUser
	expires time.Time
}

// userCache remembers which user a token belongs to. Tokens are stored
// hashed.
type userCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	users map[string]cachedUser
}

func newUserCache(ttl time.Duration, now func() time.Time) *userCache {
	return &userCache{ttl: ttl, now: now, users: make(map[string]cachedUser)}
}

func (c *userCache) get(token string) (github.APIUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cache.TokenFingerprint(token)
	u, ok := c.users[key]
	if !ok {
		return github.APIUser{}, false
	}
	if !c.now().Before(u.expires) {
		delete(c.users, key)
		return github.APIUser{}, false
	}
	return u.user, true
}

func (c *userCache) put(token string, user github.APIUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, u := range c.users {
		if !now.Before(u.expires) {
			delete(c.users, k)
		}
	}
	c.users[cache.TokenFingerprint(token)] = cachedUser{user: user, expires: now.Add(c.ttl)}
}

func (s *Server) githubClient(token string) (*github.Client, error) {
	return github.NewClient(github.ClientOptions{
		Token:     token,
		APIURL:    s.cfg.APIURL,
		Transport: s.transport,
	})
}

// authenticate resolves the caller's GitHub user and billing config.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		gh, err := s.githubClient(token)
		if err != nil {
			s.log.Error("failed to create github client", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		user, ok := s.users.get(token)
		if ok {
			s.metrics.userCache.WithLabelValues("hit").Inc()
		} else {
			s.metrics.userCache.WithLabelValues("miss").Inc()
			u, err := gh.AuthenticatedUser(r.Context())
			if err != nil {
				code := github.StatusCode(err)
				if code == http.StatusUnauthorized || code == http.StatusForbidden {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				s.metrics.upstream.WithLabelValues("user").Inc()
				s.log.Warn("failed to resolve token owner", zap.Error(err))
				writeError(w, http.StatusBadGateway, "Failed to verify credentials")
				return
			}
			user = *u
			s.users.put(token, user)
		}

		sess := &session{
			token:   token,
			user:    user,
			billing: billing.ConfigFor(s.cfg.BillingEnabled, s.tier(r.Context(), user.ID), s.cfg.Limits),
			gh:      gh,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func (s *Server) tier(ctx context.Context, userID int64) billing.Tier {
	if s.tiers == nil {
		return billing.TierFree
	}
	tier, err := s.tiers.Tier(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		s.log.Warn("failed to look up tier", zap.Int64("user_id", userID), zap.Error(err))
		return billing.TierFree
	}
	return tier
}
