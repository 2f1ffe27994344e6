// Package contentclassifier maps request paths to content categories.
// Classification looks at the path only, never at response headers, so the
// same path always lands in the same category.
package contentclassifier

import (
	gopath "path"
	"strings"
)

// Category is the content class a request path maps to.
type Category string

const (
	Image    Category = "image"
	Font     Category = "font"
	Style    Category = "style"
	Script   Category = "script"
	Document Category = "document"
	// Other is the category for anything no rule matches.
	// Responses in this category are never cached.
	Other Category = "other"
)

// Rule maps one path pattern to a category.
// Ext matches the lower-cased path extension without the leading dot,
// Suffix matches the raw end of the path.
type Rule struct {
	Ext      string
	Suffix   string
	Category Category
}

// Table is an ordered list of rules. The first matching rule wins.
type Table []Rule

// Default is the rule table used by Classify. It covers the asset types a
// browser requests for a typical page. Paths ending in a slash count as
// documents.
var Default = Table{
	{Ext: "png", Category: Image},
	{Ext: "jpg", Category: Image},
	{Ext: "jpeg", Category: Image},
	{Ext: "gif", Category: Image},
	{Ext: "webp", Category: Image},
	{Ext: "svg", Category: Image},
	{Ext: "ico", Category: Image},
	{Ext: "avif", Category: Image},
	{Ext: "woff2", Category: Font},
	{Ext: "woff", Category: Font},
	{Ext: "ttf", Category: Font},
	{Ext: "otf", Category: Font},
	{Ext: "eot", Category: Font},
	{Ext: "css", Category: Style},
	{Ext: "js", Category: Script},
	{Ext: "mjs", Category: Script},
	{Ext: "html", Category: Document},
	{Ext: "htm", Category: Document},
	{Suffix: "/", Category: Document},
}

// Classify returns the category of the given URL path (without query)
// according to the default rule table.
func Classify(path string) Category {
	return Default.Classify(path)
}

func (t Table) Classify(path string) Category {
	ext := strings.TrimPrefix(strings.ToLower(gopath.Ext(path)), ".")
	for _, rule := range t {
		if rule.Ext != "" && rule.Ext == ext {
			return rule.Category
		}
		if rule.Suffix != "" && strings.HasSuffix(path, rule.Suffix) {
			return rule.Category
		}
	}
	return Other
}
