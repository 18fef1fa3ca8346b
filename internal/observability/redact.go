// File: internal/observability/redact.go
package observability

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

// RedactedMarker replaces secret material in logs and history records.
const RedactedMarker = "***REDACTED***"

// sensitiveKeyParts marks a field name as credential-shaped when any part
// appears in it, case-insensitively.
var sensitiveKeyParts = []string{
	"password", "token", "secret", "key", "ltuid", "ltoken",
	"credential", "auth", "session", "cookie",
}

// inlineSecretPatterns catch key=value and key: "value" shapes inside free text.
var inlineSecretPatterns = func() []*regexp.Regexp {
	keys := []string{"ltuid", "ltoken", "password", "token", "cookie", "authorization", "account_id"}
	out := make([]*regexp.Regexp, 0, len(keys))
	for _, k := range keys {
		out = append(out, regexp.MustCompile(`(?i)(`+k+`["']?\s*[:=]\s*["']?)([^"'&\s,;]+)`))
	}
	return out
}()

// IsSensitiveKey reports whether a field name looks like it holds a credential.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// MaskValue keeps the first four characters of long values.
func MaskValue(v string) string {
	if len(v) > 4 {
		return v[:4] + RedactedMarker
	}
	return RedactedMarker
}

// RedactString scrubs inline credentials from free text.
func RedactString(s string) string {
	for _, re := range inlineSecretPatterns {
		s = re.ReplaceAllString(s, "${1}"+RedactedMarker)
	}
	return s
}

// RedactStrings applies RedactString to every element.
func RedactStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = RedactString(s)
	}
	return out
}

// RedactFields returns a copy of fields with credential-shaped keys masked
// and string values scrubbed. Nested maps are handled recursively.
func RedactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			if IsSensitiveKey(k) {
				out[k] = MaskValue(val)
			} else {
				out[k] = RedactString(val)
			}
		case map[string]any:
			out[k] = RedactFields(val)
		default:
			if IsSensitiveKey(k) && v != nil {
				out[k] = RedactedMarker
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// redactingCore scrubs messages and string fields before they reach the
// wrapped core.
type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so every entry passes through redaction.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactZapFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = RedactString(ent.Message)
	return c.Core.Write(ent, redactZapFields(fields))
}

func redactZapFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			if IsSensitiveKey(f.Key) {
				f.String = MaskValue(f.String)
			} else {
				f.String = RedactString(f.String)
			}
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: RedactString(err.Error())}
			}
		}
		out[i] = f
	}
	return out
}
