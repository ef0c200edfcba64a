package router

import "testing"

func TestTemplateMatcherExtractsVariables(t *testing.T) {
	m, err := newTemplateMatcher("stdio://files/{path}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vars, ok := m.match("stdio://files/readme.md")
	if !ok {
		t.Fatal("expected a match")
	}
	if vars["path"] != "readme.md" {
		t.Errorf("expected path=readme.md, got %q", vars["path"])
	}
}

func TestTemplateMatcherSimpleVarDoesNotCrossSlash(t *testing.T) {
	m, _ := newTemplateMatcher("stdio://files/{path}")
	if _, ok := m.match("stdio://files/a/b"); ok {
		t.Error("a {var} expansion must not match a slash")
	}
}

func TestTemplateMatcherReservedExpansionCrossesSlash(t *testing.T) {
	m, err := newTemplateMatcher("stdio://files/{+path}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vars, ok := m.match("stdio://files/a/b/c")
	if !ok {
		t.Fatal("expected {+path} to match across slashes")
	}
	if vars["path"] != "a/b/c" {
		t.Errorf("expected path=a/b/c, got %q", vars["path"])
	}
}

func TestTemplateMatcherRejectsExactURIThatIsNotATemplateMatch(t *testing.T) {
	m, _ := newTemplateMatcher("stdio://files/{path}")
	if _, ok := m.match("stdio://other/readme.md"); ok {
		t.Error("expected no match for a URI outside the template's literal prefix")
	}
}
