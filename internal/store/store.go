// Package store is the persistence boundary: fight definitions are read
// at session creation, student records are read at join and written
// after victory. The combat engine itself never touches the database.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/classraid/classraid-server/internal/engine"
	"github.com/classraid/classraid-server/internal/session"
)

// Fight is a stored fight definition. Question, enemy, and loot content
// is kept as JSON documents; the engine consumes them as typed slices.
type Fight struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Guild     bool
	XPAward   int
	Questions []engine.Question  `gorm:"serializer:json"`
	Enemies   []engine.EnemySpec `gorm:"serializer:json"`
	Loot      []engine.LootItem  `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Student is one student record. The bonus columns are the
// equipment-derived stat modifiers consumed at session start; equipment
// itself is managed elsewhere.
type Student struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Class       string `gorm:"not null"`
	Gender      string
	Level       int `gorm:"default:1"`
	XP          int
	HPBonus     int
	MPBonus     int
	PotionBonus int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LootAward is a pending loot roll. Awards are claimed explicitly, never
// auto-applied to the student's inventory.
type LootAward struct {
	ID          uint   `gorm:"primaryKey"`
	StudentID   string `gorm:"index;not null"`
	SessionCode string
	ItemID      string
	ItemName    string
	Claimed     bool
	CreatedAt   time.Time
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&Fight{}, &Student{}, &LootAward{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db, log: logger.Named("store")}, nil
}

// FightByID loads a fight definition.
func (s *Store) FightByID(ctx context.Context, id uint) (engine.FightDef, error) {
	var f Fight
	if err := s.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return engine.FightDef{}, fmt.Errorf("loading fight %d: %w", id, err)
	}
	return engine.FightDef{
		Name:      f.Name,
		Guild:     f.Guild,
		XPAward:   f.XPAward,
		Questions: f.Questions,
		Enemies:   f.Enemies,
		Loot:      f.Loot,
	}, nil
}

// PlayerInfo loads a student record as session seed data, equipment
// modifiers included.
func (s *Store) PlayerInfo(ctx context.Context, studentID string) (session.PlayerInfo, error) {
	var st Student
	if err := s.db.WithContext(ctx).First(&st, "id = ?", studentID).Error; err != nil {
		return session.PlayerInfo{}, fmt.Errorf("loading student %s: %w", studentID, err)
	}
	return session.PlayerInfo{
		ID:     st.ID,
		Name:   st.Name,
		Class:  engine.Class(st.Class),
		Gender: st.Gender,
		Level:  st.Level,
		XP:     st.XP,
		Mods: engine.StatMods{
			HP:      st.HPBonus,
			MP:      st.MPBonus,
			Potions: st.PotionBonus,
		},
	}, nil
}

// RecordVictory persists every player's progression outcome in one
// transaction. Sessions call this fire-and-forget; failures are logged
// by the caller and never stall a session.
func (s *Store) RecordVictory(ctx context.Context, code string, results []session.VictoryRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range results {
			updates := map[string]any{"xp": rec.XPTotal, "level": rec.Level}
			if err := tx.Model(&Student{}).Where("id = ?", rec.PlayerID).Updates(updates).Error; err != nil {
				return fmt.Errorf("updating student %s: %w", rec.PlayerID, err)
			}
			if rec.Loot != nil {
				award := LootAward{
					StudentID:   rec.PlayerID,
					SessionCode: code,
					ItemID:      rec.Loot.ID,
					ItemName:    rec.Loot.Name,
				}
				if err := tx.Create(&award).Error; err != nil {
					return fmt.Errorf("storing loot for %s: %w", rec.PlayerID, err)
				}
			}
		}
		return nil
	})
}

// ClaimLoot marks a pending award as claimed by its owner.
func (s *Store) ClaimLoot(ctx context.Context, studentID string, awardID uint) error {
	res := s.db.WithContext(ctx).
		Model(&LootAward{}).
		Where("id = ? AND student_id = ? AND claimed = false", awardID, studentID).
		Update("claimed", true)
	if res.Error != nil {
		return fmt.Errorf("claiming loot %d: %w", awardID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PendingLoot lists a student's unclaimed awards.
func (s *Store) PendingLoot(ctx context.Context, studentID string) ([]LootAward, error) {
	var awards []LootAward
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND claimed = false", studentID).
		Order("created_at").
		Find(&awards).Error
	if err != nil {
		return nil, fmt.Errorf("listing loot for %s: %w", studentID, err)
	}
	return awards, nil
}
