package convert

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Fonts the rasterizer can render natively.
var nativeFonts = map[string]struct{}{
	"liberation sans":  {},
	"liberation serif": {},
	"liberation mono":  {},
	"dejavu sans":      {},
	"sans-serif":       {},
	"serif":            {},
	"monospace":        {},
}

// Common proprietary families mapped onto metric-compatible substitutes.
// Anything outside this table and the native set is a hard failure.
var fontSubstitutes = map[string]string{
	"arial":           "Liberation Sans",
	"arial narrow":    "Liberation Sans",
	"arial black":     "Liberation Sans",
	"helvetica":       "Liberation Sans",
	"helvetica neue":  "Liberation Sans",
	"times":           "Liberation Serif",
	"times new roman": "Liberation Serif",
	"courier":         "Liberation Mono",
	"courier new":     "Liberation Mono",
}

var (
	// font-family="Arial, sans-serif" (attribute form, either quote style)
	fontAttrRe = regexp.MustCompile(`font-family\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	// font-family: Arial, sans-serif (style attribute and embedded CSS)
	fontCSSRe = regexp.MustCompile(`font-family\s*:\s*([^;"'}<]+)`)
)

// UnsupportedFontError is returned when vector markup names fonts that are
// neither natively available nor mapped to a substitute.
type UnsupportedFontError struct {
	Fonts []string
}

func (e *UnsupportedFontError) Error() string {
	return fmt.Sprintf("convert: unsupported fonts: %s", strings.Join(e.Fonts, ", "))
}

// resolveFonts extracts every declared font family from vector markup and
// decides its fate: native names pass silently, mapped names yield a
// substitution plus a warning, anything else is collected into a fatal error.
func resolveFonts(markup []byte) (map[string]string, []string, error) {
	declared := extractFontFamilies(markup)

	subs := make(map[string]string)
	var warnings []string
	var unsupported []string
	for _, name := range declared {
		key := strings.ToLower(name)
		if _, ok := nativeFonts[key]; ok {
			continue
		}
		if substitute, ok := fontSubstitutes[key]; ok {
			if _, seen := subs[name]; !seen {
				subs[name] = substitute
				warnings = append(warnings, fmt.Sprintf("font %q is not available, substituted %q", name, substitute))
			}
			continue
		}
		unsupported = append(unsupported, name)
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, nil, &UnsupportedFontError{Fonts: dedupe(unsupported)}
	}
	return subs, warnings, nil
}

// extractFontFamilies pulls font names from both the attribute and the
// CSS declaration syntax, splitting comma lists and stripping quotes.
func extractFontFamilies(markup []byte) []string {
	var names []string
	seen := make(map[string]struct{})
	add := func(list string) {
		for _, part := range strings.Split(list, ",") {
			name := strings.Trim(strings.TrimSpace(part), `"'`)
			if name == "" {
				continue
			}
			if _, ok := seen[strings.ToLower(name)]; ok {
				continue
			}
			seen[strings.ToLower(name)] = struct{}{}
			names = append(names, name)
		}
	}
	for _, m := range fontAttrRe.FindAllSubmatch(markup, -1) {
		if len(m[1]) > 0 {
			add(string(m[1]))
		} else {
			add(string(m[2]))
		}
	}
	for _, m := range fontCSSRe.FindAllSubmatch(markup, -1) {
		add(string(m[1]))
	}
	return names
}

// applySubstitutions rewrites mapped font names so the rasterizer only ever
// sees families it can render. Only font-family declarations are touched;
// text content or other attributes mentioning a font name stay as written.
func applySubstitutions(markup []byte, subs map[string]string) []byte {
	if len(subs) == 0 {
		return markup
	}
	rewrite := func(decl []byte) []byte {
		out := string(decl)
		for original, substitute := range subs {
			out = strings.ReplaceAll(out, original, substitute)
		}
		return []byte(out)
	}
	markup = fontAttrRe.ReplaceAllFunc(markup, rewrite)
	return fontCSSRe.ReplaceAllFunc(markup, rewrite)
}

func dedupe(names []string) []string {
	out := names[:0]
	var last string
	for i, name := range names {
		if i > 0 && name == last {
			continue
		}
		out = append(out, name)
		last = name
	}
	return out
}
