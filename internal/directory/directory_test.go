package directory

import "testing"

func TestQualifyAvatar(t *testing.T) {
	cases := []struct {
		name   string
		base   string
		avatar string
		want   string
	}{
		{"relative path", "https://cdn.example.com", "avatars/a1.png", "https://cdn.example.com/avatars/a1.png"},
		{"leading slash", "https://cdn.example.com/", "/avatars/a1.png", "https://cdn.example.com/avatars/a1.png"},
		{"absolute passthrough", "https://cdn.example.com", "https://elsewhere.example.com/x.png", "https://elsewhere.example.com/x.png"},
		{"empty avatar", "https://cdn.example.com", "", ""},
		{"no base", "", "avatars/a1.png", "avatars/a1.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := QualifyAvatar(tc.base, tc.avatar); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
