package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type submissionRow struct {
	ID        string `gorm:"primaryKey;size:191"`
	Name      string
	Category  string `gorm:"index"`
	Status    string `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (submissionRow) TableName() string { return "submissions" }

type historyRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SubmissionID string `gorm:"index;not null;size:191"`
	FromStatus   string `gorm:"not null"`
	ToStatus     string `gorm:"not null"`
	Actor        string
	At           time.Time
}

func (historyRow) TableName() string { return "status_history" }

type scoreRow struct {
	SubmissionID       string `gorm:"primaryKey;size:191"`
	Judge              string `gorm:"primaryKey;size:191"`
	Round              int    `gorm:"column:round_no;primaryKey;autoIncrement:false"`
	Innovation         int
	TechnicalExecution int
	MarketPotential    int
	UserExperience     int
	WeightedTotal      float64
	Notes              string
	UpdatedAt          time.Time
}

func (scoreRow) TableName() string { return "judge_scores" }

type voteRow struct {
	SubmissionID string `gorm:"primaryKey;size:191"`
	VoterID      string `gorm:"primaryKey;size:191"`
	Kind         string
	Weight       float64
	CastAt       int64 `gorm:"not null"` // unix nanoseconds
	EventID      string
}

func (voteRow) TableName() string { return "votes" }

type voteHistoryRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SubmissionID string `gorm:"index;not null;size:191"`
	VoterID      string `gorm:"not null"`
	Kind         string
	Weight       float64
	CastAt       int64
	EventID      string
	Outcome      string
}

func (voteHistoryRow) TableName() string { return "vote_history" }

// OpenGorm opens a database for driver ("sqlite" or "postgres").
func OpenGorm(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		db, err := gorm.Open(gormsqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres, "postgresql", "pg":
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || strings.Contains(candidate, ":memory:") {
		return nil
	}
	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %q: %w", dir, err)
	}
	return nil
}

// Migrate creates or updates every table the store needs.
func Migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&submissionRow{},
		&historyRow{},
		&scoreRow{},
		&voteRow{},
		&voteHistoryRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// GormStore is a Store over a SQL database.
type GormStore struct {
	db          *gorm.DB
	autoMigrate bool
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps db. With WithAutoMigrate the schema is created first.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	s := &GormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.autoMigrate {
		if err := Migrate(ctx, db); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateSubmission implements SubmissionStore.
func (g *GormStore) CreateSubmission(ctx context.Context, s model.Submission) error {
	defer observe("create_submission", time.Now())
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&submissionRow{}).Where("id = ?", s.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("check submission %s: %w", s.ID, err)
		}
		if n > 0 {
			return fmt.Errorf("submission %s: %w", s.ID, ErrAlreadyExists)
		}
		row := submissionRow{
			ID: s.ID, Name: s.Name, Category: s.Category, Status: string(s.Status),
			CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("submission %s: %w", s.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("insert submission %s: %w", s.ID, err)
		}
		return nil
	})
}

// GetSubmission implements SubmissionStore.
func (g *GormStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	var row submissionRow
	err := g.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Submission{}, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("get submission %s: %w", id, err)
	}
	return row.toModel(), nil
}

// ListSubmissions implements SubmissionStore.
func (g *GormStore) ListSubmissions(ctx context.Context) ([]model.Submission, error) {
	defer observe("list_submissions", time.Now())
	var rows []submissionRow
	if err := g.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]model.Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// CompareAndSetStatus implements SubmissionStore.
func (g *GormStore) CompareAndSetStatus(ctx context.Context, id string, from, to model.Status, rec model.HistoryRecord) error {
	defer observe("set_status", time.Now())
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&submissionRow{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(map[string]any{"status": string(to), "updated_at": rec.At})
		if res.Error != nil {
			return fmt.Errorf("update status %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&submissionRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return fmt.Errorf("check submission %s: %w", id, err)
			}
			if n == 0 {
				return fmt.Errorf("submission %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("submission %s is not %s: %w", id, from, ErrStatusConflict)
		}
		h := historyRow{
			SubmissionID: rec.SubmissionID, FromStatus: string(rec.From), ToStatus: string(rec.To),
			Actor: rec.Actor, At: rec.At,
		}
		if err := tx.Create(&h).Error; err != nil {
			return fmt.Errorf("append history %s: %w", id, err)
		}
		return nil
	})
}

// History implements SubmissionStore.
func (g *GormStore) History(ctx context.Context, id string) ([]model.HistoryRecord, error) {
	if _, err := g.GetSubmission(ctx, id); err != nil {
		return nil, err
	}
	var rows []historyRow
	if err := g.db.WithContext(ctx).Where("submission_id = ?", id).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	out := make([]model.HistoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.HistoryRecord{
			SubmissionID: r.SubmissionID, From: model.Status(r.FromStatus), To: model.Status(r.ToStatus),
			Actor: r.Actor, At: r.At,
		})
	}
	return out, nil
}

// UpsertScore implements ScoreStore.
func (g *GormStore) UpsertScore(ctx context.Context, s model.JudgeScore) error {
	defer observe("upsert_score", time.Now())
	row, err := scoreRowFrom(s)
	if err != nil {
		return err
	}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}, {Name: "judge"}, {Name: "round_no"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"innovation", "technical_execution", "market_potential", "user_experience",
			"weighted_total", "notes", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert score %s/%s/%d: %w", s.SubmissionID, s.Judge, s.Round, err)
	}
	return nil
}

// GetScore implements ScoreStore.
func (g *GormStore) GetScore(ctx context.Context, submissionID, judge string, round model.Round) (model.JudgeScore, error) {
	var row scoreRow
	err := g.db.WithContext(ctx).
		Where("submission_id = ? AND judge = ? AND round_no = ?", submissionID, judge, int(round)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.JudgeScore{}, fmt.Errorf("score %s/%s/%d: %w", submissionID, judge, round, ErrNotFound)
	}
	if err != nil {
		return model.JudgeScore{}, fmt.Errorf("get score: %w", err)
	}
	return row.toModel()
}

// ListScores implements ScoreStore.
func (g *GormStore) ListScores(ctx context.Context, submissionID string) ([]model.JudgeScore, error) {
	return g.listScores(ctx, g.db.WithContext(ctx).Where("submission_id = ?", submissionID))
}

// ListAllScores implements ScoreStore.
func (g *GormStore) ListAllScores(ctx context.Context) ([]model.JudgeScore, error) {
	defer observe("list_scores", time.Now())
	return g.listScores(ctx, g.db.WithContext(ctx))
}

func (g *GormStore) listScores(_ context.Context, q *gorm.DB) ([]model.JudgeScore, error) {
	var rows []scoreRow
	if err := q.Order("submission_id asc, judge asc, round_no asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	out := make([]model.JudgeScore, 0, len(rows))
	for _, r := range rows {
		s, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// RecordVote implements VoteStore.
func (g *GormStore) RecordVote(ctx context.Context, v model.Vote) (model.VoteOutcome, error) {
	defer observe("record_vote", time.Now())
	outcome := model.VoteCounted
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev voteRow
		err := tx.Where("submission_id = ? AND voter_id = ?", v.SubmissionID, v.VoterID).Take(&prev).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("read counted vote: %w", err)
		case v.CastAt.UnixNano() < prev.CastAt:
			outcome = model.VoteStale
		default:
			outcome = model.VoteReplaced
		}

		if outcome != model.VoteStale {
			row := voteRow{
				SubmissionID: v.SubmissionID, VoterID: v.VoterID, Kind: string(v.Kind),
				Weight: v.Weight, CastAt: v.CastAt.UnixNano(), EventID: v.EventID,
			}
			// The guard keeps a concurrent older vote from overwriting a newer one.
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "submission_id"}, {Name: "voter_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"kind", "weight", "cast_at", "event_id"}),
				Where: clause.Where{Exprs: []clause.Expression{
					clause.Expr{SQL: "excluded.cast_at >= votes.cast_at"},
				}},
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("upsert counted vote: %w", err)
			}
		}

		h := voteHistoryRow{
			SubmissionID: v.SubmissionID, VoterID: v.VoterID, Kind: string(v.Kind),
			Weight: v.Weight, CastAt: v.CastAt.UnixNano(), EventID: v.EventID, Outcome: string(outcome),
		}
		if err := tx.Create(&h).Error; err != nil {
			return fmt.Errorf("append vote history: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// CountedVotes implements VoteStore.
func (g *GormStore) CountedVotes(ctx context.Context) ([]model.Vote, error) {
	var rows []voteRow
	if err := g.db.WithContext(ctx).Order("submission_id asc, voter_id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("counted votes: %w", err)
	}
	out := make([]model.Vote, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Vote{
			SubmissionID: r.SubmissionID, VoterID: r.VoterID, Kind: model.VoteKind(r.Kind),
			Weight: r.Weight, CastAt: time.Unix(0, r.CastAt).UTC(), EventID: r.EventID,
		})
	}
	return out, nil
}

// VoteHistory implements VoteStore.
func (g *GormStore) VoteHistory(ctx context.Context, submissionID string) ([]model.Vote, error) {
	var rows []voteHistoryRow
	if err := g.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("vote history %s: %w", submissionID, err)
	}
	out := make([]model.Vote, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Vote{
			SubmissionID: r.SubmissionID, VoterID: r.VoterID, Kind: model.VoteKind(r.Kind),
			Weight: r.Weight, CastAt: time.Unix(0, r.CastAt).UTC(), EventID: r.EventID,
		})
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r submissionRow) toModel() model.Submission {
	return model.Submission{
		ID: r.ID, Name: r.Name, Category: r.Category, Status: model.Status(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func scoreRowFrom(s model.JudgeScore) (scoreRow, error) {
	var notes any
	switch {
	case s.Round1 != nil:
		notes = s.Round1
	case s.Round2 != nil:
		notes = s.Round2
	}
	raw := ""
	if notes != nil {
		b, err := json.Marshal(notes)
		if err != nil {
			return scoreRow{}, fmt.Errorf("encode notes: %w", err)
		}
		raw = string(b)
	}
	return scoreRow{
		SubmissionID:       s.SubmissionID,
		Judge:              s.Judge,
		Round:              int(s.Round),
		Innovation:         s.Ratings.Innovation,
		TechnicalExecution: s.Ratings.TechnicalExecution,
		MarketPotential:    s.Ratings.MarketPotential,
		UserExperience:     s.Ratings.UserExperience,
		WeightedTotal:      s.WeightedTotal,
		Notes:              raw,
		UpdatedAt:          s.UpdatedAt,
	}, nil
}

func (r scoreRow) toModel() (model.JudgeScore, error) {
	s := model.JudgeScore{
		SubmissionID: r.SubmissionID,
		Judge:        r.Judge,
		Round:        model.Round(r.Round),
		Ratings: model.Ratings{
			Innovation:         r.Innovation,
			TechnicalExecution: r.TechnicalExecution,
			MarketPotential:    r.MarketPotential,
			UserExperience:     r.UserExperience,
		},
		WeightedTotal: r.WeightedTotal,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Notes == "" {
		return s, nil
	}
	switch s.Round {
	case model.RoundOne:
		s.Round1 = &model.Round1Notes{}
		if err := json.Unmarshal([]byte(r.Notes), s.Round1); err != nil {
			return model.JudgeScore{}, fmt.Errorf("decode round-1 notes: %w", err)
		}
	case model.RoundTwo:
		s.Round2 = &model.Round2Notes{}
		if err := json.Unmarshal([]byte(r.Notes), s.Round2); err != nil {
			return model.JudgeScore{}, fmt.Errorf("decode round-2 notes: %w", err)
		}
	}
	return s, nil
}
