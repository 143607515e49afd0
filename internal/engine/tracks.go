package engine

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AudioTrack describes one selectable audio stream.
type AudioTrack struct {
	ID       int    `json:"id"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

// SubtitleTrack describes one selectable subtitle stream. ID -1 is the
// conventional "disabled" track.
type SubtitleTrack struct {
	ID       int    `json:"id"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
}

var titleCaser = cases.Title(language.English)

// DisplayTitle renders a human-readable label for track listings.
func (t AudioTrack) DisplayTitle() string {
	return displayTitle(t.Title, t.Language, t.ID)
}

// DisplayTitle renders a human-readable label for track listings.
func (t SubtitleTrack) DisplayTitle() string {
	if t.ID < 0 {
		return "Disabled"
	}
	return displayTitle(t.Title, t.Language, t.ID)
}

func displayTitle(title, lang string, id int) string {
	title = strings.TrimSpace(title)
	lang = strings.TrimSpace(lang)
	switch {
	case title != "" && lang != "":
		return fmt.Sprintf("%s (%s)", titleCaser.String(title), strings.ToUpper(lang))
	case title != "":
		return titleCaser.String(title)
	case lang != "":
		return fmt.Sprintf("Track %d (%s)", id, strings.ToUpper(lang))
	default:
		return fmt.Sprintf("Track %d", id)
	}
}
