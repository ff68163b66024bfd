package web

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"starminder/internal/models"
)

type atomFeed struct {
	XMLName  xml.Name    `xml:"feed"`
	XMLNS    string      `xml:"xmlns,attr"`
	Title    string      `xml:"title"`
	Subtitle string      `xml:"subtitle,omitempty"`
	ID       string      `xml:"id"`
	Updated  string      `xml:"updated"`
	Links    []atomLink  `xml:"link"`
	Entries  []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomEntry struct {
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Link    atomLink    `xml:"link"`
	Updated string      `xml:"updated"`
	Content atomContent `xml:"content"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// renderAtom builds the Atom document for a user's reminder history.
func renderAtom(baseURL, feedID string, user *models.User, reminders []models.Reminder) ([]byte, error) {
	feedURL := fmt.Sprintf("%s/feeds/%s", baseURL, feedID)

	updated := time.Now().UTC()
	if len(reminders) > 0 {
		updated = reminders[0].CreatedAt
	}

	feed := atomFeed{
		XMLNS:    "http://www.w3.org/2005/Atom",
		Title:    fmt.Sprintf("Starminder Feed - %s", user.Username),
		Subtitle: fmt.Sprintf("Starred repository reminders for %s", user.Username),
		ID:       feedURL,
		Updated:  updated.Format(time.RFC3339),
		Links:    []atomLink{{Href: feedURL, Rel: "self"}},
	}

	for _, reminder := range reminders {
		entryURL := fmt.Sprintf("%s/%s", feedURL, reminder.ID)
		feed.Entries = append(feed.Entries, atomEntry{
			Title:   fmt.Sprintf("Reminders from %s", reminder.CreatedAt.UTC().Format("2006-01-02 15:04")),
			ID:      entryURL,
			Link:    atomLink{Href: entryURL},
			Updated: reminder.UpdatedAt.UTC().Format(time.RFC3339),
			Content: atomContent{Type: "html", Body: reminderHTML(reminder)},
		})
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// reminderHTML renders one reminder's stars as the feed entry body.
func reminderHTML(reminder models.Reminder) string {
	if len(reminder.Stars) == 0 {
		return "No entries in this reminder."
	}

	var b strings.Builder
	for _, star := range reminder.Stars {
		fmt.Fprintf(&b, "<h3>%s (%s)</h3>\n", star.FullName(), star.Provider)
		if star.Description != nil && *star.Description != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", *star.Description)
		}
		fmt.Fprintf(&b, "<p>Stars: %d</p>\n", star.StarCount)
		fmt.Fprintf(&b, "<p><a href=%q>Repository</a>", star.RepoURL)
		if star.ProjectURL != nil && *star.ProjectURL != "" {
			fmt.Fprintf(&b, " | <a href=%q>Project</a>", *star.ProjectURL)
		}
		b.WriteString("</p>\n")
	}
	return b.String()
}
