// Package player models playback of multimedia stories: which elements a
// story renders, the transport controls driving them and the waveform shown
// for audio.
//
// Player is a client-side transport controller. Front-end bindings drive it
// from element events; the server only builds the Layout payload.
package player

import "benirage/model"

// Source is one playable media element.
type Source struct {
	URL      string `json:"url"`
	Poster   string `json:"poster,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds, 0 when unknown
	Hidden   bool   `json:"hidden,omitempty"`
}

// Layout describes what a story renders.
type Layout struct {
	Variant       model.MediaType `json:"variant"`
	Content       string          `json:"content,omitempty"`
	Video         *Source         `json:"video,omitempty"`
	Audio         *Source         `json:"audio,omitempty"`
	Transcript    string          `json:"transcript,omitempty"`
	Visualization bool            `json:"visualization"`
}

// HasMedia reports whether the layout has anything to play.
func (l Layout) HasMedia() bool {
	return l.Video != nil || l.Audio != nil
}

// BuildLayout dispatches on the story's media type. A media type whose URLs
// are missing degrades to text.
func BuildLayout(s model.Story) Layout {
	l := Layout{Variant: s.MediaType}

	switch s.MediaType {
	case model.MediaTypeAudio:
		if s.AudioURL == "" {
			return textLayout(s)
		}
		l.Audio = &Source{URL: s.AudioURL, Duration: s.AudioDuration, Hidden: true}
		l.Visualization = true

	case model.MediaTypeVideo:
		if s.VideoURL == "" {
			return textLayout(s)
		}
		l.Video = &Source{URL: s.VideoURL, Poster: s.ThumbnailURL, Duration: s.VideoDuration}
		l.Transcript = s.Transcript

	case model.MediaTypeMixed:
		if s.VideoURL != "" {
			l.Video = &Source{URL: s.VideoURL, Poster: s.ThumbnailURL, Duration: s.VideoDuration}
		}
		if s.AudioURL != "" {
			l.Audio = &Source{URL: s.AudioURL, Duration: s.AudioDuration, Hidden: true}
		}
		if !l.HasMedia() {
			return textLayout(s)
		}
		l.Visualization = true

	default:
		return textLayout(s)
	}
	return l
}

func textLayout(s model.Story) Layout {
	return Layout{Variant: model.MediaTypeText, Content: s.Content}
}
