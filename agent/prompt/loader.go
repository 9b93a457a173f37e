package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/resolver.txt
var resolverRaw string

// Resolver returns the system prompt that frames intent resolution.
func Resolver() string {
	return strings.TrimSpace(resolverRaw)
}
