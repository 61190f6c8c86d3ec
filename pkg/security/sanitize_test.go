package security

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSanitizer_Text(t *testing.T) {
	s := Strict()
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Home", "Home"},
		{"  padded  ", "  padded  "},
		{"line one\nline two\n", "line one\nline two\n"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"a < b", "a < b"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>Hi`, "Hi"},
		{`<a href="javascript:evil()">link</a>`, "link"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Text(tt.in), "Text(%q)", tt.in)
	}
}

func TestSanitizer_Values(t *testing.T) {
	in := url.Values{
		"pages[1][name]": {"<i>Home</i>"},
		"designStyle":    {"modern", "<b>bold</b>"},
	}
	got := Strict().Values(in)
	want := url.Values{
		"pages[1][name]": {"Home"},
		"designStyle":    {"modern", "bold"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "<i>Home</i>", in.Get("pages[1][name]"), "input modified")
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://formspree.io/f/abc"))
	assert.True(t, IsValidURL("http://localhost:9000/submit"))
	assert.False(t, IsValidURL("ftp://example.com"))
	assert.False(t, IsValidURL("https://"))
	assert.False(t, IsValidURL("/relative"))
	assert.False(t, IsValidURL("::"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "hello...", TruncateText("hello world again", 9))
}
