package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// GradeRun groups the grade records produced by one invocation of the grader.
type GradeRun struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	InputDir    string        `gorm:"size:512" json:"input_dir"`
	ScoreCap    int           `gorm:"not null" json:"score_cap"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at"`
	Records     []GradeRecord `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"records,omitempty"`
}

// GradeRecord is the persisted result of grading one submission.
type GradeRecord struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	RunID       string         `gorm:"size:36;index;not null" json:"run_id"`
	Student     string         `gorm:"size:255;index;not null" json:"student"`
	ArchivePath string         `gorm:"size:512" json:"archive_path"`
	Status      string         `gorm:"size:32;not null" json:"status"`
	Score       int            `gorm:"not null" json:"score"`
	Total       int            `gorm:"not null" json:"total"`
	Digest      string         `gorm:"size:16" json:"digest"`
	Error       string         `gorm:"type:text" json:"error"`
	Items       datatypes.JSON `gorm:"type:json" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

const (
	// GradeStatusGraded indicates every stage of the checklist ran.
	GradeStatusGraded = "graded"
	// GradeStatusFailed indicates a fatal error stopped the checklist early.
	GradeStatusFailed = "failed"
)

// GradeItem is the stored form of one checklist item.
type GradeItem struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// SetItems serializes the checklist outcome into the JSON storage column.
func (r *GradeRecord) SetItems(items []GradeItem) {
	data, err := json.Marshal(items)
	if err != nil {
		r.Items = datatypes.JSON([]byte("[]"))
		return
	}
	r.Items = datatypes.JSON(data)
}

// ItemList deserializes the stored checklist outcome.
func (r GradeRecord) ItemList() []GradeItem {
	if len(r.Items) == 0 {
		return nil
	}

	var items []GradeItem
	if err := json.Unmarshal(r.Items, &items); err != nil {
		return nil
	}

	return items
}
