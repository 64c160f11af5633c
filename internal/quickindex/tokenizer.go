package quickindex

import (
	"regexp"
	"strings"
	"unicode"
)

// identifierPattern matches alphanumeric runs, including underscores, before
// camelCase/snake_case splitting.
var identifierPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizePathLike splits a filename, path segment, or symbol name into
// lowercased sub-tokens, the same camelCase/snake_case aware split the
// lexical index uses for code identifiers: "getUserById.py" yields
// {"get", "user", "by", "id", "py"}, so a search for "user" matches a file
// named get_user_by_id.py even though "user" never appears as its own word.
func TokenizePathLike(text string) []string {
	var tokens []string
	for _, word := range identifierPattern.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			lower := strings.ToLower(part)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase/PascalCase identifiers, treating runs of
// uppercase letters as acronyms: "HTTPHandler" -> ["HTTP", "Handler"].
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}
