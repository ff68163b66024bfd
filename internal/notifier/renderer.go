// Package notifier renders reminder digests and delivers them over SMTP.
package notifier

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
	"time"

	"github.com/yuin/goldmark"

	"starminder/internal/models"
)

//go:embed email.md.tmpl
var emailTemplate string

// Rendered is one digest ready for delivery.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type templateStar struct {
	FullName    string
	Description string
	StarCount   int
	RepoURL     string
	ProjectURL  string
}

type templateData struct {
	UserName string
	Today    string
	Stars    []templateStar
	ForkURL  string
}

// Renderer turns a reminder into subject, Markdown text, and HTML.
type Renderer struct {
	tmpl    *template.Template
	forkURL string

	now func() time.Time
}

func NewRenderer(forkURL string) *Renderer {
	return &Renderer{
		tmpl:    template.Must(template.New("email").Parse(emailTemplate)),
		forkURL: forkURL,
		now:     time.Now,
	}
}

// Render produces the digest for one reminder. The text body is the Markdown
// itself; the HTML body is its conversion.
func (r *Renderer) Render(user *models.User, reminder *models.Reminder) (*Rendered, error) {
	today := r.now().UTC().Format("Monday, 2 January 2006")

	data := templateData{
		UserName: user.DisplayName(),
		Today:    today,
		ForkURL:  r.forkURL,
	}
	for _, star := range reminder.Stars {
		ts := templateStar{
			FullName:  star.FullName(),
			StarCount: star.StarCount,
			RepoURL:   star.RepoURL,
		}
		if star.Description != nil {
			ts.Description = *star.Description
		}
		if star.ProjectURL != nil {
			ts.ProjectURL = *star.ProjectURL
		}
		data.Stars = append(data.Stars, ts)
	}

	var md bytes.Buffer
	if err := r.tmpl.Execute(&md, data); err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &html); err != nil {
		return nil, fmt.Errorf("failed to convert email to HTML: %w", err)
	}

	return &Rendered{
		Subject: fmt.Sprintf("☆ Starminder ☆ Reminders for %s", today),
		Text:    md.String(),
		HTML:    html.String(),
	}, nil
}
