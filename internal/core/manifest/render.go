package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/caravel-sh/caravel/internal/core/domain"
)

// ImagePlaceholder is the token the manifest template carries where the
// fully qualified image reference belongs.
const ImagePlaceholder = "{{IMAGE}}"

// tokenPattern matches {{NAME}} placeholder tokens. The double-brace form is
// used instead of ${VAR} so templates can still carry compose runtime
// interpolation untouched.
var tokenPattern = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)\}\}`)

// Render substitutes the image reference into the manifest template.
// This is a pure function - no I/O, no side effects.
//
// A template with no image placeholder is rejected: deploying it would start
// whatever image the file happens to name instead of the one just pushed.
// Tokens other than the image placeholder are rejected as unresolved.
func Render(template string, image domain.ImageRef) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", ErrEmptyTemplate
	}
	if !strings.Contains(template, ImagePlaceholder) {
		return "", NewRenderError(ImagePlaceholder, "template has no image placeholder", ErrMissingPlaceholder)
	}

	rendered := strings.ReplaceAll(template, ImagePlaceholder, image.String())

	if leftover := tokenPattern.FindAllString(rendered, -1); len(leftover) > 0 {
		tokens := dedupe(leftover)
		return "", NewRenderError(tokens[0],
			fmt.Sprintf("unresolved tokens: %s", strings.Join(tokens, ", ")),
			ErrUnresolvedToken)
	}

	return rendered, nil
}

// Placeholders lists the distinct {{NAME}} tokens present in a template, in
// order of first appearance.
func Placeholders(template string) []string {
	return dedupe(tokenPattern.FindAllString(template, -1))
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
