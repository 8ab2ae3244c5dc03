// Package gormstore is the Postgres ledger.Store. Counters are moved with
// relative UPDATEs and every row the ledger reads before writing is taken
// with SELECT ... FOR UPDATE.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/models"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &tx{db: gtx})
	})
	if err != nil && isRetryable(err) {
		return fmt.Errorf("%w: %w", ledger.ErrRetryable, err)
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return true
	}
	return false
}

type tx struct {
	db *gorm.DB
}

func (t *tx) locked() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *tx) LockSubject(_ context.Context, subjectType ledger.SubjectType, id int) (ledger.Subject, error) {
	switch subjectType {
	case ledger.SubjectQuestion:
		var q models.Question
		err := t.locked().
			Select("id", "author_id", "votes").
			Where("id = ? AND is_deleted = ?", id, false).
			Take(&q).Error
		if err != nil {
			return ledger.Subject{}, notFound(err, "question", id)
		}
		author := q.AuthorID
		return ledger.Subject{Type: subjectType, ID: q.ID, AuthorID: &author, Votes: q.Votes}, nil
	case ledger.SubjectAnswer:
		var a models.Answer
		err := t.locked().
			Select("id", "question_id", "author_id", "votes").
			Where("id = ? AND is_deleted = ?", id, false).
			Take(&a).Error
		if err != nil {
			return ledger.Subject{}, notFound(err, "answer", id)
		}
		// Answers of a deleted question are gone with it.
		var live int64
		err = t.db.Model(&models.Question{}).
			Where("id = ? AND is_deleted = ?", a.QuestionID, false).
			Count(&live).Error
		if err != nil {
			return ledger.Subject{}, err
		}
		if live == 0 {
			return ledger.Subject{}, fmt.Errorf("answer %d: %w", id, ledger.ErrNotFound)
		}
		return ledger.Subject{Type: subjectType, ID: a.ID, AuthorID: a.AuthorID, Votes: a.Votes}, nil
	default:
		return ledger.Subject{}, ledger.ErrInvalidSubjectType
	}
}

func (t *tx) voteRow(subjectType ledger.SubjectType, subjectID, voterID int) *gorm.DB {
	return t.db.Model(&models.Vote{}).
		Where("subject_type = ? AND subject_id = ? AND voter_id = ?", string(subjectType), subjectID, voterID)
}

func (t *tx) FindVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int) (*ledger.VoteType, error) {
	var v models.Vote
	err := t.voteRow(subjectType, subjectID, voterID).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	vt := ledger.VoteType(v.VoteType)
	return &vt, nil
}

func (t *tx) InsertVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int, voteType ledger.VoteType) error {
	return t.db.Create(&models.Vote{
		SubjectID:   subjectID,
		SubjectType: string(subjectType),
		VoterID:     voterID,
		VoteType:    string(voteType),
	}).Error
}

func (t *tx) UpdateVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int, voteType ledger.VoteType) error {
	return t.voteRow(subjectType, subjectID, voterID).Update("vote_type", string(voteType)).Error
}

func (t *tx) DeleteVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int) error {
	return t.db.
		Where("subject_type = ? AND subject_id = ? AND voter_id = ?", string(subjectType), subjectID, voterID).
		Delete(&models.Vote{}).Error
}

func (t *tx) AddVotes(_ context.Context, subjectType ledger.SubjectType, id, delta int) (int, error) {
	table, err := subjectTable(subjectType)
	if err != nil {
		return 0, err
	}
	if err := t.db.Table(table).Where("id = ?", id).
		UpdateColumn("votes", gorm.Expr("votes + ?", delta)).Error; err != nil {
		return 0, err
	}
	var total int
	if err := t.db.Raw("SELECT votes FROM "+table+" WHERE id = ?", id).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (t *tx) AddReputation(_ context.Context, userID, delta int) error {
	return t.db.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("reputation", gorm.Expr("reputation + ?", delta)).Error
}

func (t *tx) AddAnswersCount(_ context.Context, userID, delta int) error {
	return t.db.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("answers_count", gorm.Expr("answers_count + ?", delta)).Error
}

func (t *tx) FindAnswer(_ context.Context, id int) (ledger.Answer, error) {
	var a models.Answer
	if err := t.db.Where("id = ?", id).Take(&a).Error; err != nil {
		return ledger.Answer{}, notFound(err, "answer", id)
	}
	return toLedgerAnswer(a), nil
}

func (t *tx) LockAnswer(_ context.Context, id int) (ledger.Answer, error) {
	var a models.Answer
	if err := t.locked().Where("id = ?", id).Take(&a).Error; err != nil {
		return ledger.Answer{}, notFound(err, "answer", id)
	}
	return toLedgerAnswer(a), nil
}

func (t *tx) LockQuestion(_ context.Context, id int) (ledger.Question, error) {
	var q models.Question
	if err := t.locked().Where("id = ?", id).Take(&q).Error; err != nil {
		return ledger.Question{}, notFound(err, "question", id)
	}
	return ledger.Question{
		ID:               q.ID,
		AuthorID:         q.AuthorID,
		AcceptedAnswerID: q.AcceptedAnswerID,
		IsDeleted:        q.IsDeleted,
	}, nil
}

func (t *tx) LockAcceptedAnswer(_ context.Context, questionID int) (*ledger.Answer, error) {
	var a models.Answer
	err := t.locked().Where("question_id = ? AND is_accepted = ?", questionID, true).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	found := toLedgerAnswer(a)
	return &found, nil
}

func (t *tx) SetAnswerAccepted(_ context.Context, answerID int, accepted bool) error {
	return t.db.Model(&models.Answer{}).Where("id = ?", answerID).Update("is_accepted", accepted).Error
}

func (t *tx) SetAcceptedAnswer(_ context.Context, questionID int, answerID *int) error {
	var value any = gorm.Expr("NULL")
	if answerID != nil {
		value = *answerID
	}
	return t.db.Model(&models.Question{}).Where("id = ?", questionID).Update("accepted_answer_id", value).Error
}

func (t *tx) MarkAnswerDeleted(_ context.Context, answerID int) error {
	return t.db.Model(&models.Answer{}).Where("id = ?", answerID).Update("is_deleted", true).Error
}

func subjectTable(subjectType ledger.SubjectType) (string, error) {
	switch subjectType {
	case ledger.SubjectQuestion:
		return "questions", nil
	case ledger.SubjectAnswer:
		return "answers", nil
	default:
		return "", ledger.ErrInvalidSubjectType
	}
}

func notFound(err error, kind string, id int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	return err
}

func toLedgerAnswer(a models.Answer) ledger.Answer {
	return ledger.Answer{
		ID:            a.ID,
		QuestionID:    a.QuestionID,
		AuthorID:      a.AuthorID,
		IsAIGenerated: a.IsAIGenerated,
		IsAccepted:    a.IsAccepted,
		IsDeleted:     a.IsDeleted,
	}
}

var _ ledger.Store = (*Store)(nil)
var _ ledger.Tx = (*tx)(nil)
