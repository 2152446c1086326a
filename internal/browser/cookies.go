package browser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"
)

// SaveCookies serializes the full cookie set of the current context to path,
// overwriting any previous snapshot. Best-effort: callers log and continue.
func (b *Browser) SaveCookies(path string) error {
	cookies, err := b.context.Cookies()
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	b.logger.Info("cookies saved", "path", path, "count", len(cookies))
	return nil
}

// LoadCookies installs a previously saved cookie set into the context.
// Returns false without error when the store is absent or empty.
func (b *Browser) LoadCookies(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []playwright.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return false, fmt.Errorf("failed to parse cookie file: %w", err)
	}
	if len(cookies) == 0 {
		return false, nil
	}

	if err := b.context.AddCookies(toOptionalCookies(cookies)); err != nil {
		return false, fmt.Errorf("failed to install cookies: %w", err)
	}

	b.logger.Info("cookies loaded", "path", path, "count", len(cookies))
	return true, nil
}

func toOptionalCookies(cookies []playwright.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			HttpOnly: playwright.Bool(c.HttpOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Expires != 0 {
			cookie.Expires = playwright.Float(c.Expires)
		}
		if c.SameSite != nil {
			cookie.SameSite = c.SameSite
		}
		out = append(out, cookie)
	}
	return out
}
