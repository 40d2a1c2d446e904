package client

import (
	"fmt"
	"net/url"
	"strings"
)

// locatorBase turns object keys into public locators and back.
type locatorBase struct {
	base string // no trailing slash
}

func newLocatorBase(base string) locatorBase {
	return locatorBase{base: strings.TrimSuffix(base, "/")}
}

// URL returns the public locator for key.
func (l locatorBase) URL(key string) string {
	return fmt.Sprintf("%s/%s", l.base, strings.TrimPrefix(key, "/"))
}

// Key accepts either a bare object key or a locator URL under the base and
// returns the key. URLs of any other origin or path are rejected.
func (l locatorBase) Key(locator string) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("empty locator")
	}
	if !strings.Contains(locator, "://") {
		return strings.TrimPrefix(locator, "/"), nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid locator %q: %w", locator, err)
	}
	base, err := url.Parse(l.base)
	if err != nil {
		return "", fmt.Errorf("invalid locator base %q: %w", l.base, err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("locator %q is outside %s", locator, l.base)
	}

	prefix := strings.TrimSuffix(base.Path, "/") + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("locator %q is outside %s", locator, l.base)
	}
	key := strings.TrimPrefix(u.Path, prefix)
	if key == "" {
		return "", fmt.Errorf("locator %q has no object key", locator)
	}
	return key, nil
}
