package memberstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MemberRow is the gorm model backing Member. Version implements optimistic
// concurrency: Update commits only when the version it loaded is still
// current, surfacing ErrConflict otherwise.
type MemberRow struct {
	UID           uint64 `gorm:"primarykey"`
	CommunityID   string `gorm:"index:idx_member_community_member,unique;not null"`
	MemberID      string `gorm:"index:idx_member_community_member,unique;not null"`
	XP            int64
	Level         int
	LastXPAt      *time.Time
	SanctionState string
	JoinedAt      *time.Time
	MessageCount  int64
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (MemberRow) TableName() string { return "members" }

type StrikeRow struct {
	ID        uint64 `gorm:"primarykey"`
	MemberUID uint64 `gorm:"index:idx_strike_member;not null"`
	Reason    string
	Weight    int64
	IssuedAt  time.Time
	ExpiresAt time.Time `gorm:"index:idx_strike_expires"`
}

func (StrikeRow) TableName() string { return "strikes" }

// GormStore persists member state in sqlite or postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&MemberRow{}, &StrikeRow{}); err != nil {
		return nil, fmt.Errorf("running member store migrations: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SetupDatabase opens a sqlite:// or postgres:// URL with the tuning and
// logging configuration shared by all daemon database handles.
func SetupDatabase(dbURL string, maxConns int) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isSqlite := false

	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		dialector = sqlite.Open(dbURL[len("sqlite://"):])
		isSqlite = true
	case strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://"):
		dialector = postgres.Open(dbURL)
	default:
		return nil, fmt.Errorf("unsupported database URL scheme: must start with sqlite://, postgres://, or postgresql://")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	if isSqlite {
		db.Exec("PRAGMA journal_mode=WAL;")
		db.Exec("PRAGMA synchronous=NORMAL;")
		db.Exec("PRAGMA busy_timeout=10000;")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns)
		sqlDB.SetConnMaxIdleTime(time.Hour)
	}

	return db, nil
}

func (s *GormStore) Get(ctx context.Context, communityID, memberID string) (*Member, error) {
	db := s.db.WithContext(ctx)

	var row MemberRow
	err := db.Where("community_id = ? AND member_id = ?", communityID, memberID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	strikes, err := s.loadStrikes(db, row.UID)
	if err != nil {
		return nil, err
	}
	return rowToMember(&row, strikes), nil
}

func (s *GormStore) Update(ctx context.Context, communityID, memberID string, mutate func(*Member) error) error {
	db := s.db.WithContext(ctx)

	var row MemberRow
	err := db.Where(MemberRow{CommunityID: communityID, MemberID: memberID}).
		Attrs(MemberRow{SanctionState: string(StateClean)}).
		FirstOrCreate(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a creation race; the retry loop reloads the winner's row
		return ErrConflict
	}
	if err != nil {
		return err
	}

	strikes, err := s.loadStrikes(db, row.UID)
	if err != nil {
		return err
	}

	m := rowToMember(&row, strikes)
	if err := mutate(m); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&MemberRow{}).
			Where("uid = ? AND version = ?", row.UID, row.Version).
			Updates(map[string]interface{}{
				"xp":             m.XP,
				"level":          m.Level,
				"last_xp_at":     m.LastXPAt,
				"sanction_state": string(m.SanctionState),
				"joined_at":      m.JoinedAt,
				"message_count":  m.MessageCount,
				"version":        row.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		if err := tx.Where("member_uid = ?", row.UID).Delete(&StrikeRow{}).Error; err != nil {
			return err
		}
		if len(m.Strikes) > 0 {
			rows := make([]StrikeRow, 0, len(m.Strikes))
			for _, st := range m.Strikes {
				rows = append(rows, StrikeRow{
					MemberUID: row.UID,
					Reason:    string(st.Reason),
					Weight:    st.Weight,
					IssuedAt:  st.IssuedAt,
					ExpiresAt: st.ExpiresAt,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) PurgeExpiredStrikes(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", before).Delete(&StrikeRow{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&MemberRow{}).Count(&n).Error
	return n, err
}

func (s *GormStore) loadStrikes(db *gorm.DB, memberUID uint64) ([]StrikeRow, error) {
	var rows []StrikeRow
	if err := db.Where("member_uid = ?", memberUID).Order("issued_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func rowToMember(row *MemberRow, strikes []StrikeRow) *Member {
	m := &Member{
		CommunityID:   row.CommunityID,
		MemberID:      row.MemberID,
		XP:            row.XP,
		Level:         row.Level,
		LastXPAt:      row.LastXPAt,
		SanctionState: SanctionState(row.SanctionState),
		JoinedAt:      row.JoinedAt,
		MessageCount:  row.MessageCount,
	}
	for _, sr := range strikes {
		m.Strikes = append(m.Strikes, Strike{
			Reason:    StrikeReason(sr.Reason),
			Weight:    sr.Weight,
			IssuedAt:  sr.IssuedAt,
			ExpiresAt: sr.ExpiresAt,
		})
	}
	return m
}
