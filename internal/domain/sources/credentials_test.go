package sources

import (
	"fmt"
	"strings"
	"testing"
)

func TestCredentialsRedaction(t *testing.T) {
	creds := Credentials{Username: "operator", Password: "hunter2"}

	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		out := fmt.Sprintf(format, creds)
		if strings.Contains(out, "hunter2") || strings.Contains(out, "operator") {
			t.Errorf("format %s leaked credential material: %q", format, out)
		}
	}
}

func TestCredentialsRedactionHeaderValue(t *testing.T) {
	creds := Credentials{HeaderValue: "Bearer super-secret-token"}
	if out := fmt.Sprintf("%v", creds); strings.Contains(out, "super-secret") {
		t.Errorf("header value leaked: %q", out)
	}
	if creds.String() != "[redacted]" {
		t.Errorf("String() = %q, want [redacted]", creds.String())
	}
}

func TestCredentialsZeroValueString(t *testing.T) {
	var creds Credentials
	if !creds.IsZero() {
		t.Error("zero value should report IsZero")
	}
	if creds.String() != "" {
		t.Errorf("zero value String() = %q, want empty", creds.String())
	}
}

func TestBasicAuthorization(t *testing.T) {
	creds := Credentials{Username: "cam", Password: "feed"}
	// base64("cam:feed")
	want := "Basic Y2FtOmZlZWQ="
	if got := creds.BasicAuthorization(); got != want {
		t.Errorf("BasicAuthorization() = %q, want %q", got, want)
	}
}

func TestAuthModeValid(t *testing.T) {
	tests := []struct {
		mode AuthMode
		want bool
	}{
		{AuthNone, true},
		{AuthBasic, true},
		{AuthBearerHeader, true},
		{AuthMode("digest"), false},
		{AuthMode(""), false},
	}
	for _, tc := range tests {
		if got := tc.mode.Valid(); got != tc.want {
			t.Errorf("AuthMode(%q).Valid() = %v, want %v", tc.mode, got, tc.want)
		}
	}
}
