// Package browser opens run and job pages in the user's browser.
package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	ghbrowser "github.com/cli/go-gh/v2/pkg/browser"
)

// ErrInvalidURL is returned for empty or non-web URLs.
var ErrInvalidURL = errors.New("invalid URL")

// launch is replaced in tests.
var launch = func(u string) error {
	return ghbrowser.New("", os.Stdout, os.Stderr).Browse(u)
}

// Open launches the configured browser (GH_BROWSER, BROWSER or the platform
// default) on an http or https URL.
func Open(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if err := launch(u.String()); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
