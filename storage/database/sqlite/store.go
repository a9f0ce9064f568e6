// Package sqliterepos stores briefings and signing tokens in SQLite through gorm.
// It backs single-node installs, the admin CLI and the test suites.
package sqliterepos

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Open opens the SQLite database at path.
// A single connection serializes writers, which keeps the token transactions atomic.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "getting sqlite connection pool")
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates the tables and the partial index allowing one active token per briefing.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&briefingModel{}, &signingTokenModel{}); err != nil {
		return errors.Wrap(err, "migrating sqlite database")
	}
	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_briefing_signing_tokens_active
		ON briefing_signing_tokens (briefing_id) WHERE is_active`).Error
	return errors.Wrap(err, "creating active token index")
}

type Store struct {
	db *gorm.DB
}

var (
	_ briefing.Repository      = (*Store)(nil)
	_ briefing.TokenRepository = (*Store)(nil)
)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateBriefing(ctx context.Context, b briefing.Briefing) (briefing.Briefing, error) {
	m := newBriefingModel(b)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return briefing.Briefing{}, err
	}
	return m.toBriefing(), nil
}

func (s *Store) GetBriefing(ctx context.Context, id string) (briefing.Briefing, error) {
	return getBriefing(s.db.WithContext(ctx), id)
}

func getBriefing(db *gorm.DB, id string) (briefing.Briefing, error) {
	var m briefingModel
	if err := db.Where("id = ?", id).Take(&m).Error; err != nil {
		return briefing.Briefing{}, trapNotFound(err, briefing.ErrNotFound)
	}
	return m.toBriefing(), nil
}

func (s *Store) QueryBriefings(ctx context.Context, filter briefing.QueryFilter, ordering []core.DBOrdering) ([]briefing.Briefing, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("LOWER(briefing_name) LIKE ? OR LOWER(location) LIKE ? OR LOWER(conductor_name) LIKE ?", like, like, like)
	}
	if filter.Completed != nil {
		q = q.Where("completed = ?", *filter.Completed)
	}

	var ms []briefingModel
	if err := q.Order(core.OrderBy(ordering, briefing.OrderColumns, briefing.DefaultOrdering)).Find(&ms).Error; err != nil {
		return nil, err
	}
	briefings := make([]briefing.Briefing, 0, len(ms))
	for _, m := range ms {
		briefings = append(briefings, m.toBriefing())
	}
	return briefings, nil
}

func (s *Store) UpdateBriefing(ctx context.Context, id string, fn briefing.UpdateFunc) (briefing.Briefing, error) {
	var updated briefing.Briefing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := getBriefing(tx, id)
		if err != nil {
			return err
		}
		if err = fn(&b); err != nil {
			return err
		}
		m := newBriefingModel(b)
		m.ID = id // fn must not move the row
		if err = tx.Save(&m).Error; err != nil {
			return err
		}
		updated = m.toBriefing()
		return nil
	})
	return updated, err
}

func (s *Store) GetOrInsertActiveToken(ctx context.Context, candidate briefing.SigningToken, now time.Time) (briefing.SigningToken, error) {
	var tok briefing.SigningToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tok, err = getOrInsertActiveToken(tx, candidate, now)
		return err
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another writer inserted first; theirs is the active token
		return s.activeToken(ctx, candidate.BriefingID)
	}
	return tok, err
}

func getOrInsertActiveToken(tx *gorm.DB, candidate briefing.SigningToken, now time.Time) (briefing.SigningToken, error) {
	var active []signingTokenModel
	if err := tx.Where("briefing_id = ? AND is_active", candidate.BriefingID).Find(&active).Error; err != nil {
		return briefing.SigningToken{}, err
	}
	for _, m := range active {
		tok := m.toSigningToken()
		if !tok.IsExpired(now) {
			return tok, nil
		}
		err := tx.Model(&signingTokenModel{}).Where("id = ?", m.ID).Update("is_active", false).Error
		if err != nil {
			return briefing.SigningToken{}, errors.Wrap(err, "deactivating expired token")
		}
	}

	m := newSigningTokenModel(candidate)
	if err := tx.Create(&m).Error; err != nil {
		return briefing.SigningToken{}, err
	}
	return m.toSigningToken(), nil
}

func (s *Store) activeToken(ctx context.Context, briefingID string) (briefing.SigningToken, error) {
	var m signingTokenModel
	err := s.db.WithContext(ctx).Where("briefing_id = ? AND is_active", briefingID).Take(&m).Error
	if err != nil {
		return briefing.SigningToken{}, trapNotFound(err, briefing.ErrTokenNotFound)
	}
	return m.toSigningToken(), nil
}

func (s *Store) GetTokenByPublicToken(ctx context.Context, publicToken string) (briefing.SigningToken, error) {
	var m signingTokenModel
	err := s.db.WithContext(ctx).Where("public_token = ?", publicToken).Take(&m).Error
	if err != nil {
		return briefing.SigningToken{}, trapNotFound(err, briefing.ErrTokenNotFound)
	}
	return m.toSigningToken(), nil
}

func (s *Store) AddEmailRecipient(ctx context.Context, publicToken, email string) (briefing.SigningToken, error) {
	err := s.db.WithContext(ctx).Exec(`
		UPDATE briefing_signing_tokens
		SET email_sent_to = json_insert(COALESCE(email_sent_to, '[]'), '$[#]', ?)
		WHERE public_token = ?
		  AND NOT EXISTS (SELECT 1 FROM json_each(briefing_signing_tokens.email_sent_to) WHERE value = ?)`,
		email, publicToken, email,
	).Error
	if err != nil {
		return briefing.SigningToken{}, err
	}
	return s.GetTokenByPublicToken(ctx, publicToken)
}

func (s *Store) DeactivateTokens(ctx context.Context, briefingID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&signingTokenModel{}).
		Where("briefing_id = ? AND is_active", briefingID).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func trapNotFound(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}
