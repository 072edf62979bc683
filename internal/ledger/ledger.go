// Package ledger records which users acknowledged which policies. It is the
// only source of read state: a (user, policy) pair moves from Pending to
// Acknowledged exactly once and never back.
package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/models"
)

// State of a (user, policy) pair.
type State string

const (
	StatePending      State = "pending"
	StateAcknowledged State = "acknowledged"
)

// Ledger is backed by the acknowledgments table.
type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Ledger)

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acknowledge records that userID acknowledged policyID. When the pair is
// already acknowledged the existing entry is returned with created=false and
// nothing is written.
func (l *Ledger) Acknowledge(ctx context.Context, userID, policyID uint) (*models.Acknowledgment, bool, error) {
	db := l.db.WithContext(ctx)
	if err := exists(db, &models.User{}, userID, "user not found"); err != nil {
		return nil, false, err
	}
	if err := exists(db, &models.Policy{}, policyID, "policy not found"); err != nil {
		return nil, false, err
	}

	entry := &models.Acknowledgment{
		UserID:         userID,
		PolicyID:       policyID,
		AcknowledgedAt: l.now().UTC(),
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "policy_id"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return nil, false, apperr.Wrap(res.Error, apperr.CodeInternal, "record acknowledgment")
	}

	if res.RowsAffected == 0 {
		var existing models.Acknowledgment
		if err := db.Where("user_id = ? AND policy_id = ?", userID, policyID).First(&existing).Error; err != nil {
			return nil, false, apperr.Wrap(err, apperr.CodeInternal, "load acknowledgment")
		}
		if l.metrics != nil {
			l.metrics.AcknowledgmentsDuplicate.Inc()
		}
		l.log.Debug("acknowledgment already recorded",
			zap.Uint("user_id", userID),
			zap.Uint("policy_id", policyID),
		)
		return &existing, false, nil
	}

	if l.metrics != nil {
		l.metrics.AcknowledgmentsRecorded.Inc()
	}
	l.log.Info("policy acknowledged",
		zap.Uint("user_id", userID),
		zap.Uint("policy_id", policyID),
		zap.Time("acknowledged_at", entry.AcknowledgedAt),
	)
	return entry, true, nil
}

// IsAcknowledged reports whether the pair has a ledger entry.
func (l *Ledger) IsAcknowledged(ctx context.Context, userID, policyID uint) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.Acknowledgment{}).
		Where("user_id = ? AND policy_id = ?", userID, policyID).
		Limit(1).Count(&count).Error
	if err != nil {
		return false, apperr.Wrap(err, apperr.CodeInternal, "check acknowledgment")
	}
	return count > 0, nil
}

// Get returns the ledger entry for the pair, or a not_found error.
func (l *Ledger) Get(ctx context.Context, userID, policyID uint) (*models.Acknowledgment, error) {
	var a models.Acknowledgment
	err := l.db.WithContext(ctx).Where("user_id = ? AND policy_id = ?", userID, policyID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "acknowledgment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "get acknowledgment")
	}
	return &a, nil
}

// UnacknowledgedPoliciesFor returns the policies userID has not acknowledged,
// ordered by id.
func (l *Ledger) UnacknowledgedPoliciesFor(ctx context.Context, userID uint) ([]models.Policy, error) {
	acked := l.db.Model(&models.Acknowledgment{}).Select("policy_id").Where("user_id = ?", userID)
	var out []models.Policy
	err := l.db.WithContext(ctx).
		Where("id NOT IN (?)", acked).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list unacknowledged policies")
	}
	return out, nil
}

// AcknowledgedPolicy pairs a policy with the moment it was acknowledged.
type AcknowledgedPolicy struct {
	Policy         models.Policy `json:"policy"`
	AcknowledgedAt time.Time     `json:"acknowledged_at"`
}

// AcknowledgedPoliciesFor returns the policies userID acknowledged, ordered
// by policy id.
func (l *Ledger) AcknowledgedPoliciesFor(ctx context.Context, userID uint) ([]AcknowledgedPolicy, error) {
	var entries []models.Acknowledgment
	err := l.db.WithContext(ctx).
		Preload("Policy").
		Where("user_id = ?", userID).
		Order("policy_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list acknowledged policies")
	}
	out := make([]AcknowledgedPolicy, 0, len(entries))
	for _, e := range entries {
		if e.Policy == nil {
			continue
		}
		out = append(out, AcknowledgedPolicy{Policy: *e.Policy, AcknowledgedAt: e.AcknowledgedAt})
	}
	return out, nil
}

// Partition splits every policy into the user's pending and acknowledged sets.
type Partition struct {
	Pending      []models.Policy      `json:"pending"`
	Acknowledged []AcknowledgedPolicy `json:"acknowledged"`
}

func (l *Ledger) Partition(ctx context.Context, userID uint) (*Partition, error) {
	pending, err := l.UnacknowledgedPoliciesFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	acked, err := l.AcknowledgedPoliciesFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Partition{Pending: pending, Acknowledged: acked}, nil
}

// Row is one cell of the acknowledgment matrix.
type Row struct {
	User           models.User   `json:"user"`
	Policy         models.Policy `json:"policy"`
	State          State         `json:"state"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
}

type pairKey struct{ user, policy uint }

// AllAcknowledgments returns one row per (user, policy) pair ordered by user
// id then policy id, with pairs lacking a ledger entry reported as pending.
func (l *Ledger) AllAcknowledgments(ctx context.Context) ([]Row, error) {
	db := l.db.WithContext(ctx)
	var users []models.User
	if err := db.Order("id ASC").Find(&users).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list users")
	}
	var policies []models.Policy
	if err := db.Order("id ASC").Find(&policies).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list policies")
	}
	var entries []models.Acknowledgment
	if err := db.Find(&entries).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list acknowledgments")
	}

	at := make(map[pairKey]time.Time, len(entries))
	for _, e := range entries {
		at[pairKey{e.UserID, e.PolicyID}] = e.AcknowledgedAt
	}

	rows := make([]Row, 0, len(users)*len(policies))
	for _, u := range users {
		for _, p := range policies {
			row := Row{User: u, Policy: p, State: StatePending}
			if ts, ok := at[pairKey{u.ID, p.ID}]; ok {
				row.State = StateAcknowledged
				row.AcknowledgedAt = &ts
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Counts returns the number of acknowledgments per policy id. Policies
// nobody acknowledged are absent from the map.
func (l *Ledger) Counts(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		PolicyID uint
		Total    int64
	}
	err := l.db.WithContext(ctx).Model(&models.Acknowledgment{}).
		Select("policy_id, COUNT(*) AS total").
		Group("policy_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "count acknowledgments")
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.PolicyID] = r.Total
	}
	return out, nil
}

func exists(db *gorm.DB, model any, id uint, notFound string) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "lookup")
	}
	if count == 0 {
		return apperr.New(apperr.CodeNotFound, notFound)
	}
	return nil
}
