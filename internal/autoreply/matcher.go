package autoreply

import (
	"fmt"
	"regexp"
	"strings"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// Matcher tests inbound text against one trigger.
type Matcher interface {
	Match(text string) bool
}

type exactMatcher struct{ value string }

func (m exactMatcher) Match(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == m.value
}

type containsMatcher struct{ value string }

func (m containsMatcher) Match(text string) bool {
	return strings.Contains(strings.ToLower(text), m.value)
}

type prefixMatcher struct{ value string }

func (m prefixMatcher) Match(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), m.value)
}

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) Match(text string) bool { return m.re.MatchString(text) }

type allMatcher struct{}

func (allMatcher) Match(string) bool { return true }

// Compile builds the matcher for a trigger. Non-regex triggers compare
// case-insensitively; regex patterns apply as written.
func Compile(t model.TriggerType, value string) (Matcher, error) {
	switch t {
	case model.TriggerExact:
		return exactMatcher{value: strings.ToLower(strings.TrimSpace(value))}, needValue(t, value)
	case model.TriggerContains:
		return containsMatcher{value: strings.ToLower(value)}, needValue(t, value)
	case model.TriggerStartsWith:
		return prefixMatcher{value: strings.ToLower(strings.TrimSpace(value))}, needValue(t, value)
	case model.TriggerRegex:
		if err := needValue(t, value); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, appErrors.Validation("invalid regex %q: %v", value, err)
		}
		return regexMatcher{re: re}, nil
	case model.TriggerAll:
		return allMatcher{}, nil
	}
	return nil, appErrors.Validation("unknown trigger type %q", t)
}

func needValue(t model.TriggerType, value string) error {
	if strings.TrimSpace(value) == "" {
		return appErrors.Validation("%s trigger requires a value", t)
	}
	return nil
}

// ValidateRule checks a rule before it is stored.
func ValidateRule(r *model.AutoReplyRule) error {
	if r.Name == "" {
		return appErrors.Validation("rule name is required")
	}
	if !r.TriggerType.Valid() {
		return appErrors.Validation("unknown trigger type %q", r.TriggerType)
	}
	if r.TriggerType == model.TriggerAll {
		r.TriggerValue = nil
	} else if r.TriggerValue == nil {
		return appErrors.Validation("%s trigger requires a value", r.TriggerType)
	}
	if _, err := Compile(r.TriggerType, r.Trigger()); err != nil {
		return err
	}
	if err := r.Reply.Validate(); err != nil {
		return appErrors.Validation("%v", err)
	}
	if r.BusinessHours != nil {
		if err := r.BusinessHours.Validate(); err != nil {
			return appErrors.Validation("business hours: %v", err)
		}
	}
	return nil
}

func cacheKey(r *model.AutoReplyRule) string {
	return fmt.Sprintf("%d\x00%s\x00%s", r.ID, r.TriggerType, r.Trigger())
}
