package catalog

import (
	"net/url"
	"strings"
)

// Rule renders the transformation fragment for a tool. param is empty when
// the tool is applied without free-text input.
type Rule func(param string) string

// Tool is a single named transformation the remote image service understands.
type Tool struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Description       string `json:"description" yaml:"description"`
	RequiresParameter bool   `json:"requires_parameter" yaml:"requires_parameter"`
	Rule              Rule   `json:"-" yaml:"-"`
}

// Descriptor renders the tool's fragment for the given parameter.
func (t Tool) Descriptor(param string) string {
	return t.Rule(param)
}

// Fixed returns a rule that always renders the same fragment.
func Fixed(fragment string) Rule {
	return func(string) string { return fragment }
}

// Parameterized returns a rule rendering bare when no parameter is given and
// format otherwise, with every "{param}" replaced by the encoded parameter.
func Parameterized(bare, format string) Rule {
	return func(param string) string {
		if param == "" {
			return bare
		}
		return strings.ReplaceAll(format, paramPlaceholder, EncodeParameter(param))
	}
}

const paramPlaceholder = "{param}"

// componentUnescaper restores the characters encodeURIComponent leaves as is
// and maps QueryEscape's '+' back to %20.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeParameter percent-encodes free text like encodeURIComponent, so it
// cannot break the comma-separated transformation list.
func EncodeParameter(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
