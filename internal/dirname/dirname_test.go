package dirname

import "testing"

func TestParent(t *testing.T) {
	cases := []struct {
		name       Name
		wantParent Name
		wantOK     bool
	}{
		{"cn=a,ou=b,o=example", "ou=b,o=example", true},
		{"o=example", Root, true},
		{Root, Root, false},
	}
	for _, c := range cases {
		parent, ok := c.name.Parent()
		if parent != c.wantParent || ok != c.wantOK {
			t.Errorf("%q.Parent() = (%q, %v), want (%q, %v)", c.name, parent, ok, c.wantParent, c.wantOK)
		}
	}
}

func TestIsSuffix(t *testing.T) {
	suffix := Name("o=example")
	if !Name("o=example").IsSuffix(suffix) {
		t.Error("suffix itself should be IsSuffix")
	}
	if Name("ou=b,o=example").IsSuffix(suffix) {
		t.Error("a name below the suffix should not be IsSuffix")
	}
}
