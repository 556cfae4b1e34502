package transform

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Import and re-export clauses as esbuild prints them, with every path already
// replaced by a token.
var (
	importClause = regexp.MustCompile(`\bimport\s*([A-Za-z_$][\w$]*)?\s*,?\s*(?:\{([^}]*)\}|\*\s*as\s+[A-Za-z_$][\w$]*)?\s*from\s*"(` + regexp.QuoteMeta(tokenPrefix) + `[A-Za-z0-9_-]+)"`)
	exportClause = regexp.MustCompile(`\bexport\s*\{([^}]*)\}\s*from\s*"(` + regexp.QuoteMeta(tokenPrefix) + `[A-Za-z0-9_-]+)"`)
	identifier   = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// requestedNames maps each import token in code to the export names the code
// takes from it.
func requestedNames(code string) map[string][]string {
	out := make(map[string][]string)
	for _, m := range importClause.FindAllStringSubmatch(code, -1) {
		tok := m[3]
		if m[1] != "" {
			out[tok] = append(out[tok], "default")
		}
		out[tok] = append(out[tok], clauseNames(m[2])...)
	}
	for _, m := range exportClause.FindAllStringSubmatch(code, -1) {
		out[m[2]] = append(out[m[2]], clauseNames(m[1])...)
	}
	for tok, names := range out {
		out[tok] = uniqueSorted(names)
	}
	return out
}

// clauseNames returns the imported side of "a, b as c, default as d".
func clauseNames(clause string) []string {
	var names []string
	for _, item := range strings.Split(clause, ",") {
		fields := strings.Fields(item)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if unq, err := strconv.Unquote(name); err == nil {
			name = unq
		}
		names = append(names, name)
	}
	return names
}

func uniqueSorted(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	out := names[:1]
	for _, n := range names[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

// NoopExports returns an export statement binding every name except
// "default" to a function that renders nothing, or "" when there are none.
func NoopExports(names []string) string {
	var specs []string
	for _, n := range uniqueSorted(append([]string(nil), names...)) {
		switch {
		case n == "default":
		case identifier.MatchString(n):
			specs = append(specs, "__canvasNoop as "+n)
		default:
			specs = append(specs, "__canvasNoop as "+jsString(n))
		}
	}
	if len(specs) == 0 {
		return ""
	}
	return "const __canvasNoop = () => null;\nexport { " + strings.Join(specs, ", ") + " };\n"
}
