// Package sqlxrepos stores briefings and signing tokens in PostgreSQL.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
)

const (
	briefingColumns = `id, user_id, owner_email, briefing_name, briefing_type, location, briefing_date,
		conductor_name, briefing_description, attendees, photos, completed,
		pdf_url, pdf_document_id, pdf_generated_at, created_at, updated_at`
	tokenColumns = `id, briefing_id, public_token, created_by_user_id, expires_at, is_active, email_sent_to, created_at`
)

type briefingRow struct {
	ID                  string         `db:"id"`
	UserID              string         `db:"user_id"`
	OwnerEmail          null.String    `db:"owner_email"`
	BriefingName        string         `db:"briefing_name"`
	BriefingType        string         `db:"briefing_type"`
	Location            string         `db:"location"`
	BriefingDate        time.Time      `db:"briefing_date"`
	ConductorName       null.String    `db:"conductor_name"`
	BriefingDescription string         `db:"briefing_description"`
	Attendees           types.JSONText `db:"attendees"`
	Photos              types.JSONText `db:"photos"`
	Completed           bool           `db:"completed"`
	PDFURL              null.String    `db:"pdf_url"`
	PDFDocumentID       null.String    `db:"pdf_document_id"`
	PDFGeneratedAt      null.Time      `db:"pdf_generated_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func newBriefingRow(b briefing.Briefing) (briefingRow, error) {
	attendees, photos := b.Attendees, b.Photos
	if attendees == nil {
		attendees = []briefing.Attendee{}
	}
	if photos == nil {
		photos = []briefing.Photo{}
	}
	attendeesJSON, err := json.Marshal(attendees)
	if err != nil {
		return briefingRow{}, errors.Wrap(err, "encoding attendees")
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return briefingRow{}, errors.Wrap(err, "encoding photos")
	}
	return briefingRow{
		ID:                  b.ID,
		UserID:              b.UserID,
		OwnerEmail:          null.NewString(b.OwnerEmail, b.OwnerEmail != ""),
		BriefingName:        b.Name,
		BriefingType:        b.Type,
		Location:            b.Location,
		BriefingDate:        b.Date.UTC(),
		ConductorName:       null.NewString(b.ConductorName, b.ConductorName != ""),
		BriefingDescription: b.Description,
		Attendees:           attendeesJSON,
		Photos:              photosJSON,
		Completed:           b.Completed,
		PDFURL:              null.NewString(b.PDFURL, b.PDFURL != ""),
		PDFDocumentID:       null.NewString(b.PDFDocumentID, b.PDFDocumentID != ""),
		PDFGeneratedAt:      null.TimeFromPtr(b.PDFGeneratedAt),
		CreatedAt:           b.CreatedAt.UTC(),
		UpdatedAt:           b.UpdatedAt.UTC(),
	}, nil
}

func (r briefingRow) toBriefing() (briefing.Briefing, error) {
	b := briefing.Briefing{
		ID:            r.ID,
		UserID:        r.UserID,
		OwnerEmail:    r.OwnerEmail.String,
		Name:          r.BriefingName,
		Type:          r.BriefingType,
		Location:      r.Location,
		Date:          r.BriefingDate.UTC(),
		ConductorName: r.ConductorName.String,
		Description:   r.BriefingDescription,
		Attendees:     []briefing.Attendee{},
		Photos:        []briefing.Photo{},
		Completed:     r.Completed,
		PDFURL:        r.PDFURL.String,
		PDFDocumentID: r.PDFDocumentID.String,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.PDFGeneratedAt.Valid {
		t := r.PDFGeneratedAt.Time.UTC()
		b.PDFGeneratedAt = &t
	}
	if err := r.Attendees.Unmarshal(&b.Attendees); err != nil {
		return briefing.Briefing{}, errors.Wrap(err, "decoding attendees")
	}
	if err := r.Photos.Unmarshal(&b.Photos); err != nil {
		return briefing.Briefing{}, errors.Wrap(err, "decoding photos")
	}
	return b, nil
}

type tokenRow struct {
	ID              string         `db:"id"`
	BriefingID      string         `db:"briefing_id"`
	PublicToken     string         `db:"public_token"`
	CreatedByUserID string         `db:"created_by_user_id"`
	ExpiresAt       time.Time      `db:"expires_at"`
	IsActive        bool           `db:"is_active"`
	EmailSentTo     pq.StringArray `db:"email_sent_to"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r tokenRow) toSigningToken() briefing.SigningToken {
	emails := []string(r.EmailSentTo)
	if emails == nil {
		emails = []string{}
	}
	return briefing.SigningToken{
		ID:              r.ID,
		BriefingID:      r.BriefingID,
		PublicToken:     r.PublicToken,
		CreatedByUserID: r.CreatedByUserID,
		ExpiresAt:       r.ExpiresAt.UTC(),
		IsActive:        r.IsActive,
		EmailSentTo:     emails,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type Store struct {
	db *sqlx.DB
}

var (
	_ briefing.Repository      = (*Store)(nil)
	_ briefing.TokenRepository = (*Store)(nil)
)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateBriefing(ctx context.Context, b briefing.Briefing) (briefing.Briefing, error) {
	row, err := newBriefingRow(b)
	if err != nil {
		return briefing.Briefing{}, err
	}
	q := `INSERT INTO team_briefings (` + briefingColumns + `)
		VALUES (:id, :user_id, :owner_email, :briefing_name, :briefing_type, :location, :briefing_date,
			:conductor_name, :briefing_description, :attendees, :photos, :completed,
			:pdf_url, :pdf_document_id, :pdf_generated_at, :created_at, :updated_at)`
	if _, err = s.db.NamedExecContext(ctx, q, row); err != nil {
		return briefing.Briefing{}, err
	}
	return row.toBriefing()
}

func (s *Store) GetBriefing(ctx context.Context, id string) (briefing.Briefing, error) {
	if !isUUID(id) {
		return briefing.Briefing{}, briefing.ErrNotFound
	}
	var row briefingRow
	err := s.db.GetContext(ctx, &row, `SELECT `+briefingColumns+` FROM team_briefings WHERE id = $1`, id)
	if err != nil {
		return briefing.Briefing{}, trapNoRowsErr(err, briefing.ErrNotFound)
	}
	return row.toBriefing()
}

func (s *Store) QueryBriefings(ctx context.Context, filter briefing.QueryFilter, ordering []core.DBOrdering) ([]briefing.Briefing, error) {
	q := `SELECT ` + briefingColumns + ` FROM team_briefings WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		q += ` AND (briefing_name ILIKE $2 OR location ILIKE $2 OR conductor_name ILIKE $2)`
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		q += ` AND completed = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY ` + core.OrderBy(ordering, briefing.OrderColumns, briefing.DefaultOrdering)

	var rows []briefingRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	briefings := make([]briefing.Briefing, 0, len(rows))
	for _, row := range rows {
		b, err := row.toBriefing()
		if err != nil {
			return nil, err
		}
		briefings = append(briefings, b)
	}
	return briefings, nil
}

func (s *Store) UpdateBriefing(ctx context.Context, id string, fn briefing.UpdateFunc) (briefing.Briefing, error) {
	if !isUUID(id) {
		return briefing.Briefing{}, briefing.ErrNotFound
	}
	var updated briefing.Briefing
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row briefingRow
		err := tx.GetContext(ctx, &row, `SELECT `+briefingColumns+` FROM team_briefings WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return trapNoRowsErr(err, briefing.ErrNotFound)
		}
		b, err := row.toBriefing()
		if err != nil {
			return err
		}
		if err = fn(&b); err != nil {
			return err
		}
		b.ID = id
		if row, err = newBriefingRow(b); err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `UPDATE team_briefings SET
			briefing_name = :briefing_name, briefing_type = :briefing_type, location = :location,
			briefing_date = :briefing_date, conductor_name = :conductor_name,
			briefing_description = :briefing_description, attendees = :attendees, photos = :photos,
			completed = :completed, pdf_url = :pdf_url, pdf_document_id = :pdf_document_id,
			pdf_generated_at = :pdf_generated_at, updated_at = :updated_at
			WHERE id = :id`, row)
		if err != nil {
			return err
		}
		updated, err = row.toBriefing()
		return err
	})
	return updated, err
}

func (s *Store) GetOrInsertActiveToken(ctx context.Context, candidate briefing.SigningToken, now time.Time) (briefing.SigningToken, error) {
	var tok briefing.SigningToken
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE briefing_signing_tokens SET is_active = false
			WHERE briefing_id = $1 AND is_active AND expires_at <= $2`,
			candidate.BriefingID, now.UTC())
		if err != nil {
			return errors.Wrap(err, "deactivating expired tokens")
		}

		emails := candidate.EmailSentTo
		if emails == nil {
			emails = []string{}
		}
		var row tokenRow
		err = tx.GetContext(ctx, &row,
			`INSERT INTO briefing_signing_tokens (`+tokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, true, $6, $7)
			ON CONFLICT (briefing_id) WHERE is_active DO NOTHING
			RETURNING `+tokenColumns,
			candidate.ID, candidate.BriefingID, candidate.PublicToken, candidate.CreatedByUserID,
			candidate.ExpiresAt.UTC(), pq.StringArray(emails), candidate.CreatedAt.UTC())
		if err == nil {
			tok = row.toSigningToken()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "inserting token")
		}

		// an unexpired token is active
		err = tx.GetContext(ctx, &row,
			`SELECT `+tokenColumns+` FROM briefing_signing_tokens WHERE briefing_id = $1 AND is_active`,
			candidate.BriefingID)
		if err != nil {
			return errors.Wrap(err, "getting active token")
		}
		tok = row.toSigningToken()
		return nil
	})
	return tok, err
}

func (s *Store) GetTokenByPublicToken(ctx context.Context, publicToken string) (briefing.SigningToken, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+tokenColumns+` FROM briefing_signing_tokens WHERE public_token = $1`, publicToken)
	if err != nil {
		return briefing.SigningToken{}, trapNoRowsErr(err, briefing.ErrTokenNotFound)
	}
	return row.toSigningToken(), nil
}

func (s *Store) AddEmailRecipient(ctx context.Context, publicToken, email string) (briefing.SigningToken, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, `UPDATE briefing_signing_tokens
		SET email_sent_to = CASE WHEN $2 = ANY(email_sent_to) THEN email_sent_to
			ELSE array_append(email_sent_to, $2) END
		WHERE public_token = $1
		RETURNING `+tokenColumns, publicToken, email)
	if err != nil {
		return briefing.SigningToken{}, trapNoRowsErr(err, briefing.ErrTokenNotFound)
	}
	return row.toSigningToken(), nil
}

func (s *Store) DeactivateTokens(ctx context.Context, briefingID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE briefing_signing_tokens SET is_active = false WHERE briefing_id = $1 AND is_active`, briefingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// isUUID guards uuid columns: postgres rejects malformed ids instead of matching nothing.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func trapNoRowsErr(err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}
