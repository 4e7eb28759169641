package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"regexp"

	"github.com/normanking/meetavatar/internal/animation"
	"github.com/normanking/meetavatar/internal/identity"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

var safeColor = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[a-zA-Z]+)$`)

type renderData struct {
	Model
	Classes   string
	StyleAttr template.CSS
	Mouth     string
	Top       string
	Accessory string
}

// Render writes the HTML fragment for m.
func Render(w io.Writer, m Model) error {
	d := renderData{Model: m}

	st := m.Style
	if !safeColor.MatchString(st.Background) {
		st.Background = ""
	}
	d.StyleAttr = template.CSS(st.CSS())

	switch m.Mode {
	case ModeIcon:
		d.Classes = joinClasses(m.ClassName, m.BadgeClass)
	case ModeInitials:
		d.Classes = joinClasses(m.ClassName, m.BadgeClass, m.ParticipantID)
		d.Mouth = animation.MouthRest().String()
		if m.Identity != nil {
			d.Top = m.Identity.Variant(identity.CatalogTopName)
			d.Accessory = m.Identity.Variant(identity.CatalogAccessoriesName)
		}
	}

	if err := templates.ExecuteTemplate(w, "avatar", d); err != nil {
		return fmt.Errorf("render avatar: %w", err)
	}
	return nil
}
