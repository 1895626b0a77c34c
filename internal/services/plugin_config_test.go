package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSiteConfigLocalURL(t *testing.T) {
	site := SiteConfig{WWWRoot: "https://www.example.com/moodle/"}

	cases := []struct {
		target   string
		expected string
		ok       bool
	}{
		{target: "https://www.example.com/moodle/course/view.php?id=2", expected: "https://www.example.com/moodle/course/view.php?id=2", ok: true},
		{target: "HTTPS://WWW.EXAMPLE.COM/moodle/my/", expected: "https://www.example.com/moodle/my", ok: true},
		{target: "/course/view.php?id=2", expected: "https://www.example.com/moodle/course/view.php?id=2", ok: true},
		{target: "https://www.example.com/moodle", expected: "https://www.example.com/moodle", ok: true},
		{target: ""},
		{target: "https://evil.example.net/phish"},
		{target: "http://www.example.com/moodle/course/view.php"},
		{target: "https://www.example.com/other/index.php"},
		{target: "https://www.example.com/moodle/../other/index.php"},
		{target: "https://www.example.com/moodleevil/index.php"},
		{target: "https://attacker@www.example.com/moodle/"},
		{target: "//evil.example.net/phish"},
		{target: "/\\evil.example.net/phish"},
		{target: "course/view.php"},
		{target: "javascript:alert(1)"},
	}

	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			got, ok := site.LocalURL(tc.target)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.expected, got)
		})
	}
}
