package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/api"
	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/client"
	"github.com/kyleking/gh-actionboard/internal/config"
)

// dashboardMe is the part of the API client used to sign in.
type dashboardMe interface {
	Me(ctx context.Context) (*api.UserInfo, error)
}

func newClient(cfg *config.Config) (*client.Client, error) {
	if err := cfg.ResolveToken(); err != nil {
		return nil, err
	}
	c, err := client.New(client.Options{
		BaseURL: cfg.Client.BaseURL,
		Token:   cfg.Client.Token,
		Timeout: cfg.Client.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// signIn asks the API who the token belongs to. When the API is unreachable
// the user cached for the same token is used instead.
func signIn(ctx context.Context, c dashboardMe, users *cache.UserCache, log *zap.Logger) (*api.UserInfo, error) {
	info, err := c.Me(ctx)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("sign-in rejected: %w", err)
		}
		if cached, ok := users.Get(); ok {
			log.Warn("using cached user info", zap.String("user", cached.Username), zap.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("failed to sign in, and no user is cached for this token: %w", err)
	}
	if !info.Authenticated || info.Username == "" {
		return nil, errors.New("the dashboard API did not accept the token")
	}
	if err := users.Save(info); err != nil {
		log.Warn("failed to cache user info", zap.Error(err))
	}
	return info, nil
}

// billingFor returns the user's quota, defaulting to the free tier.
func billingFor(info *api.UserInfo, limits billing.Limits) billing.Config {
	if info.BillingConfig != nil {
		return *info.BillingConfig
	}
	if limits == (billing.Limits{}) {
		limits = billing.DefaultLimits
	}
	return billing.ConfigFor(true, billing.TierFree, limits)
}
