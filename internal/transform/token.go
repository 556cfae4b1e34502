package transform

import (
	"encoding/base64"
	"strings"
)

const tokenPrefix = "canvas-import:"

// Token encodes a specifier as an opaque import path. The alphabet is URL-safe
// base64, so a token never needs escaping inside a string literal.
func Token(specifier string) string {
	return tokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(specifier))
}

// DecodeToken returns the specifier carried by tok.
func DecodeToken(tok string) (string, bool) {
	enc, ok := strings.CutPrefix(tok, tokenPrefix)
	if !ok {
		return "", false
	}
	b, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// Rewrite replaces the token literal of every import in code with the string
// returned by target. Imports for which target returns "" keep their token.
func Rewrite(code string, imports []Import, target func(Import) string) string {
	var pairs []string
	done := make(map[string]bool)
	for _, imp := range imports {
		tok := imp.Token()
		if done[tok] {
			continue
		}
		repl := target(imp)
		if repl == "" {
			continue
		}
		done[tok] = true
		pairs = append(pairs, `"`+tok+`"`, jsString(repl))
	}
	if len(pairs) == 0 {
		return code
	}
	return strings.NewReplacer(pairs...).Replace(code)
}
