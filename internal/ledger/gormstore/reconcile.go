package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
)

// Drift is a subject whose stored vote counter disagrees with its vote rows.
type Drift struct {
	SubjectType ledger.SubjectType `json:"subject_type"`
	ID          int                `json:"id"`
	Stored      int                `json:"stored"`
	Actual      int                `json:"actual"`
}

const driftQuery = `
SELECT CAST(? AS TEXT) AS subject_type, s.id AS id, s.votes AS stored, COALESCE(v.total, 0) AS actual
FROM %[1]s s
LEFT JOIN (
    SELECT subject_id, SUM(CASE WHEN vote_type = 'up' THEN 1 ELSE -1 END) AS total
    FROM votes
    WHERE subject_type = ?
    GROUP BY subject_id
) v ON v.subject_id = s.id
WHERE s.votes <> COALESCE(v.total, 0)
ORDER BY s.id`

// FindDrift lists every question and answer whose votes column differs from
// the signed count of its vote rows.
func (s *Store) FindDrift(ctx context.Context) ([]Drift, error) {
	var out []Drift
	for _, subjectType := range []ledger.SubjectType{ledger.SubjectQuestion, ledger.SubjectAnswer} {
		table, _ := subjectTable(subjectType)
		var rows []Drift
		err := s.db.WithContext(ctx).
			Raw(fmt.Sprintf(driftQuery, table), string(subjectType), string(subjectType)).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("scan %s drift: %w", table, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Repair recomputes the vote counter of each drifted subject under the same
// row lock the vote engine takes, and returns the subjects it changed.
func (s *Store) Repair(ctx context.Context, drift []Drift) ([]Drift, error) {
	var fixed []Drift
	for _, d := range drift {
		table, err := subjectTable(d.SubjectType)
		if err != nil {
			return fixed, err
		}

		var result Drift
		err = s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			var stored int
			if err := gtx.Raw("SELECT votes FROM "+table+" WHERE id = ? FOR UPDATE", d.ID).Scan(&stored).Error; err != nil {
				return err
			}
			var actual int
			err := gtx.Raw(
				"SELECT COALESCE(SUM(CASE WHEN vote_type = 'up' THEN 1 ELSE -1 END), 0) FROM votes WHERE subject_type = ? AND subject_id = ?",
				string(d.SubjectType), d.ID,
			).Scan(&actual).Error
			if err != nil {
				return err
			}
			result = Drift{SubjectType: d.SubjectType, ID: d.ID, Stored: stored, Actual: actual}
			if stored == actual {
				return nil
			}
			return gtx.Exec("UPDATE "+table+" SET votes = ? WHERE id = ?", actual, d.ID).Error
		})
		if err != nil {
			s.logger.Error("vote counter repair failed",
				"event", "ledger_repair_failed",
				"module", "ledger",
				"layer", "adapter",
				"subject_type", string(d.SubjectType),
				"subject_id", d.ID,
				"error", err.Error(),
			)
			return fixed, fmt.Errorf("repair %s %d: %w", d.SubjectType, d.ID, err)
		}
		if result.Stored != result.Actual {
			s.logger.Info("vote counter repaired",
				"event", "ledger_repaired",
				"module", "ledger",
				"layer", "adapter",
				"subject_type", string(d.SubjectType),
				"subject_id", d.ID,
				"stored", result.Stored,
				"actual", result.Actual,
			)
			fixed = append(fixed, result)
		}
	}
	return fixed, nil
}
