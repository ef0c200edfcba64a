package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// templateMatcher compiles a restricted RFC 6570 URI template — the
// `{var}` (simple string expansion) and `{+var}` (reserved expansion,
// matches slashes) forms only — into a regexp with named capture groups,
// so a successful match also yields the extracted variable values (spec
// §4.4.2: "on match, parameters are extracted and passed to the handler").
type templateMatcher struct {
	re   *regexp.Regexp
	vars []string
}

func newTemplateMatcher(uriTemplate string) (*templateMatcher, error) {
	pat := uriTemplate
	var b strings.Builder
	b.WriteByte('^')
	seen := map[string]bool{}
	var names []string

	for len(pat) > 0 {
		literal, rest, ok := strings.Cut(pat, "{")
		b.WriteString(regexp.QuoteMeta(literal))
		if !ok {
			break
		}
		expr, rest, ok := strings.Cut(rest, "}")
		if !ok {
			return nil, errors.New("uritemplate: missing '}'")
		}
		pat = rest

		if strings.ContainsRune(expr, ',') {
			return nil, errors.New("uritemplate: multi-variable expressions are not supported")
		}
		if strings.ContainsRune(expr, ':') {
			return nil, errors.New("uritemplate: prefix modifiers are not supported")
		}
		if len(expr) > 0 && expr[len(expr)-1] == '*' {
			return nil, errors.New("uritemplate: explode modifiers are not supported")
		}

		var group, name string
		first := byte(0)
		if len(expr) > 0 {
			first = expr[0]
		}
		switch first {
		default:
			group = `[^/]*`
			name = expr
		case '+':
			group = `.*`
			name = expr[1:]
		case '#', '.', '/', ';', '?', '&':
			return nil, fmt.Errorf("uritemplate: unsupported prefix operator %q", string(first))
		}
		if name == "" || seen[name] {
			return nil, fmt.Errorf("uritemplate: empty or duplicate variable name %q", name)
		}
		seen[name] = true
		names = append(names, name)
		b.WriteString("(?P<" + sanitizeGroupName(name) + ">" + group + ")")
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("uritemplate: %w", err)
	}
	return &templateMatcher{re: re, vars: names}, nil
}

// sanitizeGroupName maps an RFC 6570 variable name (which may contain
// characters Go's regexp package rejects in a group name, such as '.' or
// '-') to a regexp-safe group name; the original names are carried
// separately in templateMatcher.vars for the values returned to callers.
func sanitizeGroupName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// match reports whether uri satisfies the template, returning the
// extracted variable values keyed by their original (unsanitized) names.
func (m *templateMatcher) match(uri string) (map[string]string, bool) {
	groups := m.re.FindStringSubmatch(uri)
	if groups == nil {
		return nil, false
	}
	vars := make(map[string]string, len(m.vars))
	for i, name := range m.vars {
		vars[name] = groups[i+1]
	}
	return vars, true
}
