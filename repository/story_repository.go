package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"benirage/model"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrStoryNotFound is returned when no story has the requested id.
	ErrStoryNotFound = errors.New("story not found")
	// ErrTitleRequired is returned when a new story is saved without a title.
	ErrTitleRequired = errors.New("story title is required")
	// ErrStoryExists is returned when an insert hits an existing primary key.
	ErrStoryExists = errors.New("story already exists")
)

const mysqlDuplicateEntry = 1062

// StoryRepository is the story table as seen by the media pipeline.
type StoryRepository interface {
	// SaveStoryMedia creates the story when storyID is empty, otherwise merges
	// fields and media into the existing row.
	SaveStoryMedia(ctx context.Context, storyID string, fields model.StoryFields, m model.StoryMedia) (*model.Story, error)
	GetByID(ctx context.Context, id string) (*model.Story, error)
	// MediaURLs lists every stored media URL referenced by a story.
	MediaURLs(ctx context.Context) ([]string, error)
	IncrementViewCount(ctx context.Context, id string) error
}

type gormStoryRepository struct {
	db *gorm.DB
}

// NewGormStoryRepository creates a gorm backed StoryRepository.
func NewGormStoryRepository(db *gorm.DB) StoryRepository {
	return &gormStoryRepository{db: db}
}

func (r *gormStoryRepository) SaveStoryMedia(ctx context.Context, storyID string, fields model.StoryFields, m model.StoryMedia) (*model.Story, error) {
	var story model.Story
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if storyID == "" {
			if strings.TrimSpace(fields.Title) == "" {
				return ErrTitleRequired
			}
			story = model.Story{ID: uuid.NewString(), MediaType: model.MediaTypeText}
			mergeFields(&story, fields)
			m.Apply(&story)
			if err := tx.Create(&story).Error; err != nil {
				if isDuplicate(err) {
					return ErrStoryExists
				}
				return err
			}
			return nil
		}

		if err := tx.Where("id = ?", storyID).First(&story).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStoryNotFound
			}
			return err
		}
		mergeFields(&story, fields)
		m.Apply(&story)
		return tx.Save(&story).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save story media: %w", err)
	}
	return &story, nil
}

func (r *gormStoryRepository) GetByID(ctx context.Context, id string) (*model.Story, error) {
	var story model.Story
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoryNotFound
		}
		return nil, err
	}
	return &story, nil
}

type mediaRow struct {
	AudioURL     string
	VideoURL     string
	ThumbnailURL string
}

func (r *gormStoryRepository) MediaURLs(ctx context.Context) ([]string, error) {
	var rows []mediaRow
	err := r.db.WithContext(ctx).Model(&model.Story{}).
		Select("audio_url", "video_url", "thumbnail_url").
		Where("audio_url <> '' OR video_url <> '' OR thumbnail_url LIKE ?", "http%").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return referencedURLs(rows), nil
}

func (r *gormStoryRepository) IncrementViewCount(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.Story{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStoryNotFound
	}
	return nil
}

// mergeFields copies the non-empty CMS fields onto s.
func mergeFields(s *model.Story, f model.StoryFields) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&s.Title, f.Title)
	set(&s.Content, f.Content)
	set(&s.AuthorName, f.AuthorName)
	set(&s.AuthorEmail, f.AuthorEmail)
	set(&s.Transcript, f.Transcript)
}

// referencedURLs flattens rows into stored URLs. Inline data URI thumbnails
// are not objects and are skipped.
func referencedURLs(rows []mediaRow) []string {
	urls := make([]string, 0, len(rows))
	for _, row := range rows {
		for _, u := range []string{row.AudioURL, row.VideoURL, row.ThumbnailURL} {
			if u == "" || strings.HasPrefix(u, "data:") {
				continue
			}
			urls = append(urls, u)
		}
	}
	return urls
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
