package autologin

import "strings"

// ButtonMatcher decides whether a control's visible text marks it as the
// login submit control.
type ButtonMatcher interface {
	Match(text string) bool
}

// defaultKeywords covers the portals the agent runs against plus the common
// English forms.
var defaultKeywords = []string{
	"登录",
	"登 录",
	"立即登录",
	"登入",
	"login",
	"log in",
	"sign in",
	"sign-in",
	"signin",
	"submit",
}

// KeywordMatcher matches case-insensitively on substring containment.
type KeywordMatcher struct {
	keywords []string
}

// NewKeywordMatcher builds a matcher over the given keyword set.
func NewKeywordMatcher(keywords ...string) KeywordMatcher {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return KeywordMatcher{keywords: lowered}
}

// DefaultMatcher returns the stock keyword matcher.
func DefaultMatcher() KeywordMatcher {
	return NewKeywordMatcher(defaultKeywords...)
}

func (m KeywordMatcher) Match(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, k := range m.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
