package threat

import "testing"

func TestIsSubsequence(t *testing.T) {
	cases := []struct {
		name    string
		trace   []string
		pattern []string
		want    bool
	}{
		{"exact match", []string{"a", "b", "c"}, []string{"a", "b", "c"}, true},
		{"gaps allowed", []string{"a", "x", "b", "y", "c"}, []string{"a", "b", "c"}, true},
		{"out of order", []string{"b", "a", "c"}, []string{"a", "b", "c"}, false},
		{"pattern longer than trace", []string{"a"}, []string{"a", "b"}, false},
		{"empty pattern always matches", []string{"a", "b"}, nil, true},
		{"repeated element pattern", []string{"a", "a", "a", "a"}, []string{"a", "a", "a", "a"}, true},
		{"missing element", []string{"a", "b"}, []string{"a", "c"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsSubsequence(tc.trace, tc.pattern)
			if got != tc.want {
				t.Errorf("IsSubsequence(%v, %v) = %v, want %v", tc.trace, tc.pattern, got, tc.want)
			}
		})
	}
}
