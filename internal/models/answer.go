package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SessionAnswer holds the candidate's current selection for one question.
// One row per answered question; overwritten on every selection change and
// never deleted while the session is running.
type SessionAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	SessionID  uint `json:"session_id" gorm:"not null;index;uniqueIndex:idx_session_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_session_question"`

	// Selected option IDs, set semantics. Cardinality <=1 for single choice.
	SelectedOptions datatypes.JSON `json:"selected_options" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SessionAnswer) TableName() string {
	return "session_answers"
}

// OptionIDs decodes the stored selection. A corrupt payload decodes as empty,
// which scores as unanswered rather than failing the session.
func (a *SessionAnswer) OptionIDs() []uint {
	var ids []uint
	if len(a.SelectedOptions) == 0 {
		return ids
	}
	_ = json.Unmarshal(a.SelectedOptions, &ids)
	return ids
}

// SetOptionIDs encodes the selection for storage.
func (a *SessionAnswer) SetOptionIDs(ids []uint) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	a.SelectedOptions = raw
	return nil
}
