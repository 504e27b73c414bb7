package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidatePage checks a fetched Page before ingestion.
func ValidatePage(p Page) error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("validate: content is empty")
	}
	if p.URL == "" {
		return fmt.Errorf("validate: url is empty")
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("validate: url %q is not absolute", p.URL)
	}
	return nil
}
