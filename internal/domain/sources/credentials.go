package sources

import "encoding/base64"

// Credentials holds a source's secret material. The zero value means "no
// credentials". The String and GoString implementations are redacted so the
// secret cannot leak through logging or %v/%+v formatting; only the gateway
// reads the raw fields when building request headers.
type Credentials struct {
	// Username and Password are used when the source's auth mode is basic.
	Username string
	Password string
	// HeaderValue is the verbatim Authorization value for bearer-header
	// sources, pre-encoded by the operator.
	HeaderValue string
}

// IsZero reports whether no credential material is present.
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == "" && c.HeaderValue == ""
}

// BasicAuthorization returns the Authorization header value for basic auth.
func (c Credentials) BasicAuthorization() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	return "Basic " + token
}

func (c Credentials) String() string {
	if c.IsZero() {
		return ""
	}
	return "[redacted]"
}

// GoString keeps %#v output redacted as well.
func (c Credentials) GoString() string {
	return "sources.Credentials{" + c.String() + "}"
}
