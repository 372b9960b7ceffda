package dns

import (
	"testing"
	"time"
)

func TestDeriveSubdomainDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	a := DeriveSubdomain("owner-1", "project-1", ts)
	b := DeriveSubdomain("owner-1", "project-1", ts)
	if a != b {
		t.Fatalf("same inputs yielded %q and %q", a, b)
	}
	if c := DeriveSubdomain("owner-2", "project-1", ts); c == a {
		t.Fatalf("different owner yielded identical slug %q", c)
	}
}

func TestDeriveSubdomainShape(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	for _, owner := range []string{"1", "2", "owner-x", "f00", "0abc"} {
		slug := DeriveSubdomain(owner, "proj", ts)
		if len(slug) != slugLength {
			t.Fatalf("slug %q has length %d, want %d", slug, len(slug), slugLength)
		}
		if !isLetter(slug[0]) {
			t.Fatalf("slug %q does not start with a letter", slug)
		}
		for i := 0; i < len(slug); i++ {
			if !isAlphanumeric(slug[i]) && slug[i] != '-' {
				t.Fatalf("slug %q contains invalid character %q", slug, slug[i])
			}
		}
	}
}
