package repositories

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"notespad/internal/models"
)

var ErrNoteNotFound = errors.New("note not found")

type NoteRepository struct {
	DB *gorm.DB
}

func (r *NoteRepository) CreateNote(in models.NoteCreate) (*models.Note, error) {
	now := time.Now().UTC()
	note := &models.Note{
		ID:        uuid.New().String(),
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.DB.Create(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

func (r *NoteRepository) GetNote(noteID string) (*models.Note, error) {
	var note models.Note
	err := r.DB.First(&note, "id = ?", noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *NoteRepository) GetAllNotes() ([]models.Note, error) {
	var notes []models.Note
	err := r.DB.Order("created_at").Find(&notes).Error
	return notes, err
}

// UpdateNote applies the non-nil fields of update and bumps updated_at.
func (r *NoteRepository) UpdateNote(noteID string, update models.NoteUpdate) (*models.Note, error) {
	note, err := r.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	if update.Title != nil {
		note.Title = *update.Title
	}
	if update.Content != nil {
		note.Content = *update.Content
	}
	note.UpdatedAt = time.Now().UTC()
	if err := r.DB.Save(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateContent is the narrow write used by the debounced save path.
func (r *NoteRepository) UpdateContent(noteID, content string) (*models.Note, error) {
	return r.UpdateNote(noteID, models.NoteUpdate{Content: &content})
}

func (r *NoteRepository) DeleteNote(noteID string) error {
	result := r.DB.Delete(&models.Note{}, "id = ?", noteID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// SeedInitialData creates a welcome note when the store is empty.
func (r *NoteRepository) SeedInitialData(log *zap.Logger) error {
	var count int64
	if err := r.DB.Model(&models.Note{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info("store already has notes, skipping seed", zap.Int64("count", count))
		return nil
	}
	note, err := r.CreateNote(models.NoteCreate{
		Title:   "Welcome to Real-Time Notes Pad",
		Content: "Start typing your notes here...",
	})
	if err != nil {
		return err
	}
	log.Info("seeded initial note", zap.String("note_id", note.ID))
	return nil
}
