package transform

import (
	"strings"
	"time"
)

// UserFields carries the configured identity values substituted into
// prompts and the upstream variables object.
type UserFields struct {
	Name     string
	Location string
	Language string
	Timezone string
}

// DefaultUserFields mirrors what the upstream web client reports for an
// anonymous visitor.
func DefaultUserFields() UserFields {
	return UserFields{
		Name:     "Guest",
		Location: "Unknown",
		Language: "zh-CN",
		Timezone: "Asia/Shanghai",
	}
}

func (u UserFields) withDefaults() UserFields {
	d := DefaultUserFields()
	if u.Name == "" {
		u.Name = d.Name
	}
	if u.Location == "" {
		u.Location = d.Location
	}
	if u.Language == "" {
		u.Language = d.Language
	}
	if u.Timezone == "" {
		u.Timezone = d.Timezone
	}
	return u
}

// ExpandVariables substitutes the supported {{...}} placeholders in
// content from the wall clock and configured user fields. Unknown
// placeholders stay literal.
func ExpandVariables(content string, now time.Time, user UserFields) string {
	if !strings.Contains(content, "{{") {
		return content
	}
	user = user.withDefaults()

	replacer := strings.NewReplacer(
		"{{DATE}}", now.Format("2006-01-02"),
		"{{TIME}}", now.Format("15:04:05"),
		"{{DAY}}", now.Weekday().String(),
		"{{USER_NAME}}", user.Name,
		"{{USER_LOCATION}}", user.Location,
		"{{USER_LANG}}", user.Language,
		"{{TZ}}", user.Timezone,
	)
	return replacer.Replace(content)
}

// UpstreamVariables builds the variables object attached to every upstream
// request. The keys are the upstream's own template names, distinct from
// the placeholder names accepted in inbound prompts.
func UpstreamVariables(now time.Time, user UserFields) map[string]string {
	user = user.withDefaults()
	return map[string]string{
		"{{USER_NAME}}":        user.Name,
		"{{USER_LOCATION}}":    user.Location,
		"{{CURRENT_DATETIME}}": now.Format("2006-01-02 15:04:05"),
		"{{CURRENT_DATE}}":     now.Format("2006-01-02"),
		"{{CURRENT_TIME}}":     now.Format("15:04:05"),
		"{{CURRENT_WEEKDAY}}":  now.Weekday().String(),
		"{{CURRENT_TIMEZONE}}": user.Timezone,
		"{{USER_LANGUAGE}}":    user.Language,
	}
}
