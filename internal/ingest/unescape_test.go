package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnescape(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		want    string
		wantErr bool
	}{
		{name: "simple", field: `"abc"`, want: "abc"},
		{name: "empty literal", field: `""`, want: ""},
		{name: "doubled quote", field: `"a""b"`, want: `a"b`},
		{name: "only a quote", field: `""""`, want: `"`},
		{name: "delimiter", field: `"a;b"`, want: "a;b"},
		{name: "unterminated", field: `"abc`, wantErr: true},
		{name: "no opening quote", field: `abc"`, wantErr: true},
		{name: "bare value", field: "abc", wantErr: true},
		{name: "empty field", field: "", wantErr: true},
		{name: "single quote char", field: `"`, wantErr: true},
		{name: "unpaired inner quote", field: `"a"b"`, wantErr: true},
		{name: "odd quote run", field: `"""`, wantErr: true},
		{name: "trailing text", field: `"a"x`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unescape(tt.field)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrQuoteFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnescape_RoundTrip(t *testing.T) {
	values := []string{"", "x", `"`, `""`, `a"b"c`, "semi;colon", "tab\there", "ünïcödé", `""""""`}
	for _, v := range values {
		got, err := Unescape(Quote(v))
		require.NoError(t, err, "value %q", v)
		assert.Equal(t, v, got)
	}
}

func FuzzUnescapeQuote(f *testing.F) {
	for _, seed := range []string{"", "a", `"`, `a""b`, "x;y", `";"`} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		got, err := Unescape(Quote(s))
		if err != nil {
			t.Fatalf("Unescape(Quote(%q)) failed: %v", s, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: got %q want %q", got, s)
		}
	})
}
