package utils

import (
	"fmt"
	"net/url"
	"regexp"
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateURL checks that raw is an absolute http(s) URL
func ValidateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("invalid url '%s': %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url '%s': scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url '%s': missing host", raw)
	}
	return nil
}

// ValidateColor checks for a #rgb or #rrggbb hex color
func ValidateColor(color string) error {
	if !hexColor.MatchString(color) {
		return fmt.Errorf("invalid color '%s': expected #rgb or #rrggbb (e.g., #1e90ff)", color)
	}
	return nil
}
