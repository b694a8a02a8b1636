package layout

import (
	"regexp"
	"strings"
)

var dirNameReplacer = strings.NewReplacer(
	"<", "(",
	">", ")",
	":", ",",
	`"`, "-",
	"/", "&",
	`\`, "&",
	"|", "&",
	"?", ".",
	"*", "&",
)

// Punctuation right before a bracket, dash or ampersand reads badly once
// ':' and '?' have been replaced, so it is dropped.
var punctBeforeSpecial = regexp.MustCompile(`[.?!,;:]+( *[&()\[\]{}\-])`)

// SanitizeDirName makes a model or tag name safe to use as one path element.
func SanitizeDirName(name string) string {
	s := dirNameReplacer.Replace(name)
	s = punctBeforeSpecial.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(s), " ")
	// "." and ".." would escape the layout root.
	if strings.Trim(s, ".") == "" {
		return ""
	}
	return s
}
