// Package model provides the persistent data models of the chunkflow store.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsValid reports whether s is one of the known statuses.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further pipeline work is expected.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// CanTransition reports whether a document may move from s to to.
// Re-entering the current state is always allowed so redelivered
// messages converge. failed -> processing is an operator retry.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	if !to.IsValid() {
		return false
	}
	if s == to {
		return true
	}
	switch s {
	case DocumentStatusPending:
		return to == DocumentStatusProcessing || to == DocumentStatusFailed
	case DocumentStatusProcessing:
		return to == DocumentStatusCompleted || to == DocumentStatusFailed
	case DocumentStatusFailed:
		return to == DocumentStatusProcessing
	}
	return false
}

// Document is an uploaded file tracked through the ingestion pipeline.
type Document struct {
	ID           string         `json:"id" gorm:"primaryKey;type:uuid;comment:文档ID"`
	UserID       string         `json:"user_id" gorm:"size:64;not null;index:idx_documents_user_id;comment:上传用户"`
	Filename     string         `json:"filename" gorm:"size:255;not null;comment:原始文件名"`
	MimeType     string         `json:"mimetype" gorm:"column:mimetype;size:100;not null;comment:MIME类型"`
	Size         int64          `json:"size" gorm:"not null;default:0;comment:文件大小(字节)"`
	Path         string         `json:"path" gorm:"size:500;not null;comment:对象存储路径"`
	Status       DocumentStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_documents_status;comment:处理状态"`
	ErrorMessage *string        `json:"error_message,omitempty" gorm:"type:text;comment:失败原因"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime;comment:创建时间"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// Transition moves the document to status to, recording errMsg when the
// target is failed and clearing it otherwise.
func (d *Document) Transition(to DocumentStatus, errMsg string) error {
	if !d.Status.CanTransition(to) {
		return errors.ErrInvalidStatus.WithMessagef("cannot move document %s from %s to %s", d.ID, d.Status, to)
	}
	d.Status = to
	if to == DocumentStatusFailed {
		if errMsg == "" {
			errMsg = "processing failed"
		}
		d.ErrorMessage = &errMsg
	} else {
		d.ErrorMessage = nil
	}
	return nil
}

// BeforeCreate assigns the document id.
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return
}
