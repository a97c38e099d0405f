package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSinkIngest(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           string
		wantErr        bool
		wantRejection  bool
		wantErrContain string
	}{
		{
			name:   "200 is acceptance",
			status: http.StatusOK,
		},
		{
			name:   "202 is acceptance",
			status: http.StatusAccepted,
		},
		{
			name:          "422 is a rejection with the pipeline reason",
			status:        http.StatusUnprocessableEntity,
			body:          `{"reason":"not a decodable image"}`,
			wantErr:       true,
			wantRejection: true,
		},
		{
			name:           "500 is a transport error",
			status:         http.StatusInternalServerError,
			body:           "boom",
			wantErr:        true,
			wantErrContain: "500",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath, gotSource, gotFilename, gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotSource = r.Header.Get("X-Perchwatch-Source")
				gotFilename = r.Header.Get("X-Perchwatch-Filename")
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			sink := NewHTTPSink(srv.URL, "test-api-key")
			err := sink.Ingest(context.Background(), "src-1", "cam1.jpg", []byte("bytes"))

			if gotPath != "/api/v1/images:ingest" {
				t.Errorf("path = %q", gotPath)
			}
			if gotSource != "src-1" || gotFilename != "cam1.jpg" {
				t.Errorf("headers = (%q, %q)", gotSource, gotFilename)
			}
			if gotAuth != "Bearer test-api-key" {
				t.Errorf("auth header = %q", gotAuth)
			}

			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}

			var rej *Rejection
			if got := errors.As(err, &rej); got != tc.wantRejection {
				t.Errorf("errors.As(Rejection) = %v, want %v (err: %v)", got, tc.wantRejection, err)
			}
			if tc.wantRejection && !strings.Contains(rej.Reason, "decodable") {
				t.Errorf("rejection reason = %q", rej.Reason)
			}
			if tc.wantErrContain != "" && !strings.Contains(err.Error(), tc.wantErrContain) {
				t.Errorf("error %q should contain %q", err, tc.wantErrContain)
			}
		})
	}
}
