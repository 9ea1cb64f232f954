package model

// Kind identifies which media field of a story an upload belongs to.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Kinds lists every media kind in a stable order.
var Kinds = []Kind{KindAudio, KindVideo, KindImage}

// ParseKind converts a raw string (e.g. a route variable) into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindAudio, KindVideo, KindImage:
		return Kind(s), true
	default:
		return "", false
	}
}

// MediaAsset is the result of a completed upload. It is never mutated after
// creation; cleanup removes the underlying object when no story references it.
type MediaAsset struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}
