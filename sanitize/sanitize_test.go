package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  Ali  ", 80, "Ali"},
		{"abcdef", 3, "abc"},
		{"فاس مكناس", 3, "فاس"},
		{"", 10, ""},
		{"   ", 10, ""},
		{"no limit", 0, "no limit"},
	}
	for _, tc := range cases {
		if got := Text(tc.in, tc.max); got != tc.want {
			t.Errorf("Text(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestHTTPSURL(t *testing.T) {
	good := []string{"https://cdn.example.com/a.jpg", "HTTPS://img.example.ma/x.png?w=1"}
	bad := []string{"http://cdn.example.com/a.jpg", "https://", "/relative.jpg", "ftp://x/y", "javascript:alert(1)", ""}
	for _, u := range good {
		if !HTTPSURL(u) {
			t.Errorf("expected %q to be accepted", u)
		}
	}
	for _, u := range bad {
		if HTTPSURL(u) {
			t.Errorf("expected %q to be rejected", u)
		}
	}
}
