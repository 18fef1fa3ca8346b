// internal/observability/redact_test.go
package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"equals form", "ltuid=12345", "ltuid=" + RedactedMarker},
		{"quoted colon form", `ltoken: "abc123"`, `ltoken: "` + RedactedMarker + `"`},
		{"case insensitive", "LTUID=1 LToken=2 Password=3 COOKIE=4",
			"LTUID=" + RedactedMarker + " LToken=" + RedactedMarker + " Password=" + RedactedMarker + " COOKIE=" + RedactedMarker},
		{"query string", "?ltuid=1&ltoken=2", "?ltuid=" + RedactedMarker + "&ltoken=" + RedactedMarker},
		{"plain text untouched", "reward claimed", "reward claimed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RedactString(tc.in))
		})
	}
}

func TestRedactFields(t *testing.T) {
	in := map[string]any{
		"password":     "hunter22",
		"api_key":      "key_123456",
		"short_secret": "abc",
		"ltuid":        "123456789",
		"debug_info":   "token=xyz",
		"count":        3,
		"nested":       map[string]any{"ltoken": "v2_abcdef"},
	}
	out := RedactFields(in)

	assert.Equal(t, "hunt"+RedactedMarker, out["password"])
	assert.Equal(t, "key_"+RedactedMarker, out["api_key"])
	assert.Equal(t, RedactedMarker, out["short_secret"])
	assert.Equal(t, "1234"+RedactedMarker, out["ltuid"])
	assert.Equal(t, "token="+RedactedMarker, out["debug_info"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, "v2_a"+RedactedMarker, out["nested"].(map[string]any)["ltoken"])
	assert.Equal(t, "hunter22", in["password"], "input must not be mutated")
}

func TestIsSensitiveKey(t *testing.T) {
	for _, k := range []string{"Password", "ltoken", "SESSION_ID", "cookie_header", "x-auth"} {
		assert.True(t, IsSensitiveKey(k), k)
	}
	for _, k := range []string{"selector", "step", "confidence"} {
		assert.False(t, IsSensitiveKey(k), k)
	}
}
