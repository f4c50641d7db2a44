package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valter-silva-au/meridian/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDecisionNotFound is returned by Get for a draft with no decision.
var ErrDecisionNotFound = errors.New("decision not found")

// DecisionStore is the ledger of KB draft reviews. Each draft keeps its
// latest decision.
type DecisionStore interface {
	RecordDecision(ctx context.Context, d models.Decision) error
	Get(ctx context.Context, draftID string) (*models.Decision, error)
	// List returns decisions, most recent first.
	List(ctx context.Context) ([]models.Decision, error)
	Stats(ctx context.Context) (models.DecisionStats, error)
	Close() error
}

type decisionRow struct {
	DraftID      string    `gorm:"primaryKey;size:191"`
	Status       string    `gorm:"size:32;not null;index"`
	RunID        string    `gorm:"size:191"`
	ScenarioID   string    `gorm:"size:191"`
	Title        string    `gorm:"size:512"`
	SourceTicket string    `gorm:"size:191"`
	Acknowledged bool      `gorm:"not null"`
	RemoteError  string    `gorm:"type:text"`
	RemoteDocID  string    `gorm:"size:191"`
	DecidedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (decisionRow) TableName() string {
	return "draft_decisions"
}

func (r decisionRow) toDecision() models.Decision {
	return models.Decision{
		DraftID:      r.DraftID,
		Status:       models.DraftStatus(r.Status),
		RunID:        r.RunID,
		ScenarioID:   r.ScenarioID,
		Title:        r.Title,
		SourceTicket: r.SourceTicket,
		Acknowledged: r.Acknowledged,
		RemoteError:  r.RemoteError,
		RemoteDocID:  r.RemoteDocID,
		DecidedAt:    r.DecidedAt.UTC(),
	}
}

type gormDecisionStore struct {
	db *gorm.DB
}

// NewDecisionStore opens the ledger database and migrates its schema.
func NewDecisionStore(driver, dsn string) (DecisionStore, error) {
	db, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening decision store: %w", err)
	}
	if err := db.AutoMigrate(&decisionRow{}); err != nil {
		return nil, fmt.Errorf("migrating decision store: %w", err)
	}
	return &gormDecisionStore{db: db}, nil
}

func (s *gormDecisionStore) RecordDecision(ctx context.Context, d models.Decision) error {
	if d.DraftID == "" {
		return fmt.Errorf("recording decision: draft id must not be empty")
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	row := decisionRow{
		DraftID:      d.DraftID,
		Status:       string(d.Status),
		RunID:        d.RunID,
		ScenarioID:   d.ScenarioID,
		Title:        d.Title,
		SourceTicket: d.SourceTicket,
		Acknowledged: d.Acknowledged,
		RemoteError:  d.RemoteError,
		RemoteDocID:  d.RemoteDocID,
		DecidedAt:    d.DecidedAt.UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("recording decision for %s: %w", d.DraftID, err)
	}
	return nil
}

func (s *gormDecisionStore) Get(ctx context.Context, draftID string) (*models.Decision, error) {
	var row decisionRow
	err := s.db.WithContext(ctx).Where("draft_id = ?", draftID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("draft %s: %w", draftID, ErrDecisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading decision for %s: %w", draftID, err)
	}
	d := row.toDecision()
	return &d, nil
}

func (s *gormDecisionStore) List(ctx context.Context) ([]models.Decision, error) {
	var rows []decisionRow
	if err := s.db.WithContext(ctx).Order("decided_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	out := make([]models.Decision, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDecision())
	}
	return out, nil
}

func (s *gormDecisionStore) Stats(ctx context.Context) (models.DecisionStats, error) {
	var stats models.DecisionStats
	type count struct {
		Status string
		N      int
	}
	var counts []count
	err := s.db.WithContext(ctx).Model(&decisionRow{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return stats, fmt.Errorf("counting decisions: %w", err)
	}
	for _, c := range counts {
		switch models.DraftStatus(c.Status) {
		case models.DraftApproved:
			stats.Approved = c.N
		case models.DraftRejected:
			stats.Rejected = c.N
		}
	}

	var unacked int64
	if err := s.db.WithContext(ctx).Model(&decisionRow{}).Where("acknowledged = ?", false).Count(&unacked).Error; err != nil {
		return stats, fmt.Errorf("counting unacknowledged decisions: %w", err)
	}
	stats.Unacknowledged = int(unacked)
	return stats, nil
}

func (s *gormDecisionStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
