package validate

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Elements whose presence in user input counts as an attempt to inject code.
var executableElements = map[string]struct{}{
	"script":   {},
	"iframe":   {},
	"frame":    {},
	"frameset": {},
	"object":   {},
	"embed":    {},
	"applet":   {},
	"style":    {},
	"base":     {},
	"meta":     {},
	"link":     {},
	"svg":      {},
}

var urlAttributes = map[string]struct{}{
	"href":       {},
	"src":        {},
	"action":     {},
	"formaction": {},
	"xlink:href": {},
	"data":       {},
}

// maxSanitizePasses bounds re-sanitizing of values that decode into new markup.
const maxSanitizePasses = 4

var (
	strictOnce   sync.Once
	strictPolicy *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// Sanitize strips every tag from value, drops the content of executable
// elements, decodes entities and trims surrounding whitespace. hostile is true
// when the input carried executable markup.
func Sanitize(value string) (clean string, hostile bool) {
	clean = value
	for i := 0; i < maxSanitizePasses; i++ {
		if !strings.ContainsAny(clean, "<&") {
			break
		}
		if containsExecutableMarkup(clean) {
			hostile = true
		}
		next := html.UnescapeString(policy().Sanitize(clean))
		if next == clean {
			break
		}
		clean = next
		if !strings.Contains(clean, "<") {
			break
		}
	}
	return strings.TrimSpace(clean), hostile
}

func containsExecutableMarkup(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, hasAttr := z.TagName()
			if _, ok := executableElements[string(name)]; ok {
				return true
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				k := strings.ToLower(string(key))
				if strings.HasPrefix(k, "on") {
					return true
				}
				if _, ok := urlAttributes[k]; ok && isScriptURL(string(val)) {
					return true
				}
			}
		}
	}
}

func isScriptURL(v string) bool {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") || strings.HasPrefix(v, "data:text/html")
}
