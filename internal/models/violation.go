package models

import (
	"time"

	"gorm.io/datatypes"
)

type ViolationKind string

const (
	ViolationCopyPaste      ViolationKind = "copy_paste"
	ViolationRightClick     ViolationKind = "right_click"
	ViolationDevTools       ViolationKind = "devtools"
	ViolationPrintScreen    ViolationKind = "print_screen"
	ViolationTextSelection  ViolationKind = "text_selection"
	ViolationDragStart      ViolationKind = "drag_start"
	ViolationTabClose       ViolationKind = "tab_close"
	ViolationBackNavigation ViolationKind = "back_navigation"
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationWindowBlur     ViolationKind = "window_blur"
)

// violationSeverities maps each kind to a 1-5 severity. Unknown kinds are
// accepted at DefaultViolationSeverity; blocking is best-effort, recording is not.
var violationSeverities = map[ViolationKind]int{
	ViolationCopyPaste:      3,
	ViolationRightClick:     1,
	ViolationDevTools:       4,
	ViolationPrintScreen:    4,
	ViolationTextSelection:  1,
	ViolationDragStart:      1,
	ViolationTabClose:       2,
	ViolationBackNavigation: 2,
	ViolationTabSwitch:      3,
	ViolationWindowBlur:     2,
}

const DefaultViolationSeverity = 2

// SeverityFor returns the severity for a violation kind.
func SeverityFor(kind ViolationKind) int {
	if s, ok := violationSeverities[kind]; ok {
		return s
	}
	return DefaultViolationSeverity
}

// KnownViolationKinds lists the kinds the lockdown guard intercepts.
func KnownViolationKinds() []ViolationKind {
	kinds := make([]ViolationKind, 0, len(violationSeverities))
	for k := range violationSeverities {
		kinds = append(kinds, k)
	}
	return kinds
}

// SecurityViolation is an append-only record of one intercepted attempt.
// Rows are never updated or removed.
type SecurityViolation struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	SessionID   uint          `json:"session_id" gorm:"not null;index"`
	Kind        ViolationKind `json:"kind" gorm:"not null;index"`
	Description string        `json:"description" gorm:"not null;type:text"`
	Severity    int           `json:"severity" gorm:"default:2"`

	Metadata   datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
}

func (SecurityViolation) TableName() string {
	return "security_violations"
}
