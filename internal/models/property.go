package models

import "strings"

// DisplayMode controls how the host renders the comparison widget.
type DisplayMode string

const (
	DisplayInline   DisplayMode = "inline"
	DisplayFloating DisplayMode = "floating"
)

// Theme selects the widget color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultLocale is the fallback locale tag.
const DefaultLocale = "en-US"

// Settings carries presentation preferences. The engine treats them as
// opaque; they are validated and passed through to the host.
type Settings struct {
	DisplayMode DisplayMode `json:"display_mode"`
	Theme       Theme       `json:"theme"`
	Locale      string      `json:"locale"`
}

// PropertyConfig is the static description of what to compare: one rental
// property and its listing reference on each enabled channel. It is built
// once at engine initialization and read-only afterwards.
type PropertyConfig struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Channels map[Channel]string `json:"channels"`
	Settings Settings           `json:"settings"`
}

// EnabledChannels returns the configured channels in allow-list order.
func (c *PropertyConfig) EnabledChannels() []Channel {
	out := make([]Channel, 0, len(c.Channels))
	for _, ch := range SupportedChannels {
		if _, ok := c.Channels[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// NewPropertyConfig returns a default config with the supplied overrides
// applied. With no overrides the result always passes
// ValidatePropertyConfig.
func NewPropertyConfig(overrides ...func(*PropertyConfig)) PropertyConfig {
	c := PropertyConfig{
		ID:       "property",
		Name:     "Property",
		Channels: map[Channel]string{},
		Settings: Settings{
			DisplayMode: DisplayInline,
			Theme:       ThemeLight,
			Locale:      DefaultLocale,
		},
	}
	for _, o := range overrides {
		o(&c)
	}
	return c
}

// ValidatePropertyConfig is a total predicate over candidate configs. It
// returns false for nil or any malformed value and never panics. An empty
// channel mapping is valid; unknown channel keys are not.
func ValidatePropertyConfig(c *PropertyConfig) bool {
	if c == nil {
		return false
	}
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
		return false
	}
	switch c.Settings.DisplayMode {
	case DisplayInline, DisplayFloating:
	default:
		return false
	}
	switch c.Settings.Theme {
	case ThemeLight, ThemeDark:
	default:
		return false
	}
	for ch := range c.Channels {
		if !SupportedChannel(ch) {
			return false
		}
	}
	return true
}
