package models

import "time"

// SessionIndex is the sqlite row mirroring a session's listing fields.
// The JSON metadata file stays the source of truth; the index can be rebuilt from it.
type SessionIndex struct {
	ID         string    `json:"id" gorm:"primaryKey;size:64"`
	ChatID     int64     `json:"chat_id" gorm:"index:idx_session_index_chat"`
	State      string    `json:"state" gorm:"size:32;index"`
	Name       string    `json:"name"`
	AudioCount int       `json:"audio_count"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_session_index_created;autoCreateTime:false"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for GORM
func (SessionIndex) TableName() string {
	return "session_index"
}

// NewSessionIndex builds the index row for a session
func NewSessionIndex(s *Session) *SessionIndex {
	return &SessionIndex{
		ID:         s.ID,
		ChatID:     s.ChatID,
		State:      string(s.State),
		Name:       s.IntelligibleName,
		AudioCount: len(s.AudioEntries),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}
