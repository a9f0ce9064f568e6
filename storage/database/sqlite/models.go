package sqliterepos

import (
	"time"

	"github.com/elecmate/sitebrief/core/briefing"
)

type briefingModel struct {
	ID                  string              `gorm:"primaryKey"`
	UserID              string              `gorm:"index:idx_team_briefings_user_id;not null"`
	OwnerEmail          string
	BriefingName        string              `gorm:"not null"`
	BriefingType        string              `gorm:"not null;default:toolbox_talk"`
	Location            string              `gorm:"not null;default:''"`
	BriefingDate        time.Time           `gorm:"not null"`
	ConductorName       string
	BriefingDescription string              `gorm:"not null;default:''"`
	Attendees           []briefing.Attendee `gorm:"serializer:json;not null"`
	Photos              []briefing.Photo    `gorm:"serializer:json;not null"`
	Completed           bool                `gorm:"not null;default:false"`
	PDFURL              string              `gorm:"column:pdf_url"`
	PDFDocumentID       string              `gorm:"column:pdf_document_id"`
	PDFGeneratedAt      *time.Time          `gorm:"column:pdf_generated_at"`
	CreatedAt           time.Time           `gorm:"autoCreateTime:false"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime:false"`
}

func (briefingModel) TableName() string { return "team_briefings" }

func newBriefingModel(b briefing.Briefing) briefingModel {
	attendees, photos := b.Attendees, b.Photos
	if attendees == nil {
		attendees = []briefing.Attendee{}
	}
	if photos == nil {
		photos = []briefing.Photo{}
	}
	return briefingModel{
		ID:                  b.ID,
		UserID:              b.UserID,
		OwnerEmail:          b.OwnerEmail,
		BriefingName:        b.Name,
		BriefingType:        b.Type,
		Location:            b.Location,
		BriefingDate:        b.Date.UTC(),
		ConductorName:       b.ConductorName,
		BriefingDescription: b.Description,
		Attendees:           attendees,
		Photos:              photos,
		Completed:           b.Completed,
		PDFURL:              b.PDFURL,
		PDFDocumentID:       b.PDFDocumentID,
		PDFGeneratedAt:      b.PDFGeneratedAt,
		CreatedAt:           b.CreatedAt.UTC(),
		UpdatedAt:           b.UpdatedAt.UTC(),
	}
}

func (m briefingModel) toBriefing() briefing.Briefing {
	b := briefing.Briefing{
		ID:            m.ID,
		UserID:        m.UserID,
		OwnerEmail:    m.OwnerEmail,
		Name:          m.BriefingName,
		Type:          m.BriefingType,
		Location:      m.Location,
		Date:          m.BriefingDate.UTC(),
		ConductorName: m.ConductorName,
		Description:   m.BriefingDescription,
		Attendees:     m.Attendees,
		Photos:        m.Photos,
		Completed:     m.Completed,
		PDFURL:        m.PDFURL,
		PDFDocumentID: m.PDFDocumentID,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.PDFGeneratedAt != nil {
		t := m.PDFGeneratedAt.UTC()
		b.PDFGeneratedAt = &t
	}
	if b.Attendees == nil {
		b.Attendees = []briefing.Attendee{}
	}
	if b.Photos == nil {
		b.Photos = []briefing.Photo{}
	}
	return b
}

type signingTokenModel struct {
	ID              string    `gorm:"primaryKey"`
	BriefingID      string    `gorm:"not null"`
	PublicToken     string    `gorm:"uniqueIndex;not null"`
	CreatedByUserID string    `gorm:"not null"`
	ExpiresAt       time.Time `gorm:"not null"`
	IsActive        bool      `gorm:"not null;default:true"`
	EmailSentTo     []string  `gorm:"serializer:json;not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
}

func (signingTokenModel) TableName() string { return "briefing_signing_tokens" }

func newSigningTokenModel(t briefing.SigningToken) signingTokenModel {
	emails := t.EmailSentTo
	if emails == nil {
		emails = []string{}
	}
	return signingTokenModel{
		ID:              t.ID,
		BriefingID:      t.BriefingID,
		PublicToken:     t.PublicToken,
		CreatedByUserID: t.CreatedByUserID,
		ExpiresAt:       t.ExpiresAt.UTC(),
		IsActive:        t.IsActive,
		EmailSentTo:     emails,
		CreatedAt:       t.CreatedAt.UTC(),
	}
}

func (m signingTokenModel) toSigningToken() briefing.SigningToken {
	emails := m.EmailSentTo
	if emails == nil {
		emails = []string{}
	}
	return briefing.SigningToken{
		ID:              m.ID,
		BriefingID:      m.BriefingID,
		PublicToken:     m.PublicToken,
		CreatedByUserID: m.CreatedByUserID,
		ExpiresAt:       m.ExpiresAt.UTC(),
		IsActive:        m.IsActive,
		EmailSentTo:     emails,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}
