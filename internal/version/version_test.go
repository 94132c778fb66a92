package version

import (
	"strings"
	"testing"
)

func TestInfoDefaults(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build info must never be empty: version=%q commit=%q date=%q", v, c, d)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, marker := range []string{Service, "version=", "commit=", "date="} {
		if !strings.Contains(s, marker) {
			t.Fatalf("version string %q is missing %q", s, marker)
		}
	}
}
