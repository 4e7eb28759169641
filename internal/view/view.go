// Package view builds the render model of an avatar: which of the four
// render modes applies, with its classes, style and resolved identity.
package view

import (
	"strconv"
	"strings"

	"github.com/normanking/meetavatar/internal/identity"
)

// DefaultAvatarURL is used when no default avatar is supplied.
const DefaultAvatarURL = "images/avatar.png"

// Mode is the render mode of an avatar.
type Mode string

const (
	ModeIcon     Mode = "icon"
	ModeImage    Mode = "image"
	ModeInitials Mode = "initials"
	ModeDefault  Mode = "default"
)

// LoadErrorFunc is called when an avatar image fails to load.
type LoadErrorFunc func(params any)

// Props is everything a caller can set on an avatar.
type Props struct {
	Icon     string   `json:"icon,omitempty"`
	URL      string   `json:"url,omitempty"`
	UseCORS  bool     `json:"useCORS,omitempty"`
	CORSURLs []string `json:"corsURLs,omitempty"`

	DisplayName     string   `json:"displayName,omitempty"`
	Initials        string   `json:"initials,omitempty"`
	Color           string   `json:"color,omitempty"`
	PaletteOverride []string `json:"palette,omitempty"`

	Size          int    `json:"size,omitempty"`
	Status        string `json:"status,omitempty"`
	TestID        string `json:"testId,omitempty"`
	ID            string `json:"id,omitempty"`
	ClassName     string `json:"className,omitempty"`
	DefaultAvatar string `json:"defaultAvatar,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`

	OnLoadError       LoadErrorFunc `json:"-"`
	OnLoadErrorParams any           `json:"-"`

	// Resolver overrides identity.Default.
	Resolver *identity.Resolver `json:"-"`
}

// Style is the inline style of the avatar element.
type Style struct {
	Background string `json:"background,omitempty"`
	FontSize   string `json:"fontSize"`
	Width      string `json:"width"`
	Height     string `json:"height"`
}

// CSS renders s as an inline style attribute value.
func (s Style) CSS() string {
	var parts []string
	if s.Background != "" {
		parts = append(parts, "background: "+s.Background)
	}
	parts = append(parts,
		"font-size: "+s.FontSize,
		"height: "+s.Height,
		"width: "+s.Width,
	)
	return strings.Join(parts, "; ")
}

// Model is the resolved render model.
type Model struct {
	Mode          Mode               `json:"mode"`
	ClassName     string             `json:"className"`
	BadgeClass    string             `json:"badgeClassName,omitempty"`
	TestID        string             `json:"testId,omitempty"`
	ID            string             `json:"id,omitempty"`
	Style         Style              `json:"style"`
	Icon          string             `json:"icon,omitempty"`
	Src           string             `json:"src,omitempty"`
	CrossOrigin   bool               `json:"crossOrigin,omitempty"`
	Initials      string             `json:"initials,omitempty"`
	Identity      *identity.Identity `json:"identity,omitempty"`
	ParticipantID string             `json:"participantId,omitempty"`

	onLoadError     LoadErrorFunc
	onLoadErrorArgs any
}

// ReportLoadError forwards an image load failure to the caller callback.
// Nothing else happens.
func (m Model) ReportLoadError() {
	if m.onLoadError != nil {
		m.onLoadError(m.onLoadErrorArgs)
	}
}

// Build selects the render mode of p: icon, then image URL, then initials,
// then the default image.
func Build(p Props) Model {
	m := Model{
		BadgeClass: badgeClass(p.Status),
		TestID:     p.TestID,
		ID:         p.ID,
	}

	switch {
	case p.Icon != "":
		m.Mode = ModeIcon
		m.Icon = p.Icon
		m.ClassName = avatarClass(p.ClassName, "")
		m.Style = style(p.Size, p.Color)

	case p.URL != "":
		m.Mode = ModeImage
		m.Src = p.URL
		m.CrossOrigin = p.UseCORS || IsCORSAvatarURL(p.URL, p.CORSURLs)
		m.ClassName = avatarClass(p.ClassName, "")
		m.Style = style(p.Size, "")
		m.onLoadError = p.OnLoadError
		m.onLoadErrorArgs = p.OnLoadErrorParams

	default:
		r := p.Resolver
		if r == nil {
			r = identity.Default()
		}
		var id identity.Identity
		if p.Initials != "" {
			id = r.ResolveInitials(p.Initials, p.PaletteOverride)
		} else {
			id = r.Resolve(p.DisplayName, p.PaletteOverride)
		}

		if id.Initials == "" {
			m.Mode = ModeDefault
			m.Src = p.DefaultAvatar
			if m.Src == "" {
				m.Src = DefaultAvatarURL
			}
			m.ClassName = avatarClass(p.ClassName, "defaultAvatar")
			m.Style = style(p.Size, "")
			return m
		}

		color := p.Color
		if color == "" {
			color = id.Color
		}
		m.Mode = ModeInitials
		m.Initials = id.Initials
		m.Identity = &id
		m.ParticipantID = p.ParticipantID
		m.ClassName = avatarClass(p.ClassName, "")
		m.Style = style(p.Size, color)
	}
	return m
}

// IsCORSAvatarURL reports whether url starts with one of the CORS prefixes.
func IsCORSAvatarURL(url string, corsURLs []string) bool {
	for _, prefix := range corsURLs {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func avatarClass(className, additional string) string {
	return joinClasses("avatar", additional, className)
}

func badgeClass(status string) string {
	if status == "" {
		return ""
	}
	return joinClasses("avatar-badge", "avatar-badge-"+status)
}

func joinClasses(classes ...string) string {
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, " ")
}

func style(size int, color string) Style {
	s := Style{Background: color, FontSize: "180%", Width: "100%", Height: "100%"}
	if size > 0 {
		s.FontSize = strconv.FormatFloat(float64(size)*0.5, 'f', -1, 64) + "px"
		s.Width = strconv.Itoa(size) + "px"
		s.Height = s.Width
	}
	return s
}
