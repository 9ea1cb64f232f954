package model

import "time"

// MediaType is the presentation variant of a multimedia story.
type MediaType string

const (
	MediaTypeText  MediaType = "text"
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
	MediaTypeMixed MediaType = "mixed"
)

// Story is a multimedia story record. The CMS owns most columns; the media
// pipeline only writes the fields carried by StoryMedia.
type Story struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title         string    `json:"title" gorm:"type:varchar(255);not null"`
	Content       string    `json:"content" gorm:"type:text"`
	AuthorName    string    `json:"authorName" gorm:"type:varchar(255)"`
	AuthorEmail   string    `json:"authorEmail" gorm:"type:varchar(255)"`
	MediaType     MediaType `json:"mediaType" gorm:"type:varchar(16);default:text"`
	AudioURL      string    `json:"audioUrl,omitempty" gorm:"type:varchar(1024)"`
	VideoURL      string    `json:"videoUrl,omitempty" gorm:"type:varchar(1024)"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty" gorm:"type:mediumtext"`
	Transcript    string    `json:"transcript,omitempty" gorm:"type:text"`
	AudioDuration int       `json:"audioDuration"` // seconds
	VideoDuration int       `json:"videoDuration"` // seconds
	IsApproved    bool      `json:"isApproved" gorm:"index"`
	IsFeatured    bool      `json:"isFeatured"`
	ViewCount     int64     `json:"viewCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName pins the gorm table name.
func (Story) TableName() string {
	return "stories"
}

// StoryFields are the CMS-owned fields submitted together with a draft save.
type StoryFields struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
	Transcript  string `json:"transcript"`
}

// StoryMedia is the media subset of a story produced by the upload pipeline.
type StoryMedia struct {
	Audio         *MediaAsset `json:"audio,omitempty"`
	Video         *MediaAsset `json:"video,omitempty"`
	Image         *MediaAsset `json:"image,omitempty"`
	AudioDuration int         `json:"audioDuration,omitempty"`
	VideoDuration int         `json:"videoDuration,omitempty"`
	// Thumbnail is a data URI extracted from the video when no image was uploaded.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// MediaType derives the story variant from the uploaded assets.
func (m StoryMedia) MediaType() MediaType {
	switch {
	case m.Audio != nil && m.Video != nil:
		return MediaTypeMixed
	case m.Video != nil:
		return MediaTypeVideo
	case m.Audio != nil:
		return MediaTypeAudio
	default:
		return MediaTypeText
	}
}

// ThumbnailURL prefers an uploaded image over the extracted video frame.
func (m StoryMedia) ThumbnailURL() string {
	if m.Image != nil {
		return m.Image.URL
	}
	return m.Thumbnail
}

// Apply merges the media subset into the story record.
func (m StoryMedia) Apply(s *Story) {
	if m.Audio != nil {
		s.AudioURL = m.Audio.URL
		s.AudioDuration = m.AudioDuration
	}
	if m.Video != nil {
		s.VideoURL = m.Video.URL
		s.VideoDuration = m.VideoDuration
	}
	if thumb := m.ThumbnailURL(); thumb != "" {
		s.ThumbnailURL = thumb
	}
	s.MediaType = deriveMediaType(s)
}

func deriveMediaType(s *Story) MediaType {
	return StoryMedia{
		Audio: assetIf(s.AudioURL),
		Video: assetIf(s.VideoURL),
	}.MediaType()
}

func assetIf(url string) *MediaAsset {
	if url == "" {
		return nil
	}
	return &MediaAsset{URL: url}
}
