package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidationError represents a base URL validation failure
type URLValidationError struct {
	Field   string
	Message string
	URL     string
}

func (e URLValidationError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// ValidateBaseURL validates that a source base URL is absolute and uses an
// HTTP scheme. When requireHTTPS is set, plain http is rejected; external
// sources in production should not ship credentials over cleartext.
func ValidateBaseURL(urlString, fieldName string, requireHTTPS bool) error {
	if urlString == "" {
		return URLValidationError{
			Field:   fieldName,
			Message: "base URL is required",
			URL:     urlString,
		}
	}

	parsedURL, err := url.Parse(urlString)
	if err != nil {
		return URLValidationError{
			Field:   fieldName,
			Message: "invalid URL format",
			URL:     urlString,
		}
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return URLValidationError{
			Field:   fieldName,
			Message: "URL must use http:// or https://",
			URL:     urlString,
		}
	}

	if parsedURL.Host == "" {
		return URLValidationError{
			Field:   fieldName,
			Message: "URL must include a host",
			URL:     urlString,
		}
	}

	if requireHTTPS && scheme != "https" {
		return URLValidationError{
			Field:   fieldName,
			Message: "URL must use HTTPS in production",
			URL:     urlString,
		}
	}

	return nil
}
