package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry represents a single audit log entry with structured fields
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	SourceID   string            `json:"source_id,omitempty"`
	SourceName string            `json:"source_name,omitempty"`
	IPAddress  string            `json:"ip_address"`
	Status     string            `json:"status"` // "success" or "failure"
	Details    map[string]string `json:"details,omitempty"`
}

// Logger records operator mutations of the source registry. Entries go to
// the main log stream tagged audit=true so they can be filtered out into a
// separate retention pipeline.
type Logger struct {
	log zerolog.Logger
}

// NewLogger creates a new audit logger
func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Bool("audit", true).Logger()}
}

// Log writes an audit entry to the log output
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	evt := l.log.Info().
		Time("timestamp", entry.Timestamp).
		Str("action", entry.Action).
		Str("ip_address", entry.IPAddress).
		Str("status", entry.Status)
	if entry.SourceID != "" {
		evt = evt.Str("source_id", entry.SourceID)
	}
	if entry.SourceName != "" {
		evt = evt.Str("source_name", entry.SourceName)
	}
	for k, v := range entry.Details {
		evt = evt.Str(k, v)
	}
	evt.Msg("audit")
}

// LogRequest records an operator action taken over the HTTP API.
func (l *Logger) LogRequest(r *http.Request, action, sourceID, sourceName, status string, details map[string]string) {
	l.Log(Entry{
		Action:     action,
		SourceID:   sourceID,
		SourceName: sourceName,
		IPAddress:  extractClientIP(r),
		Status:     status,
		Details:    details,
	})
}

// extractClientIP gets the client IP from request headers or RemoteAddr
func extractClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header (alternative proxy header)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
