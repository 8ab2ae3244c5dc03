package ledger

import "context"

// Store runs fn inside one database transaction. When fn returns an error
// nothing it wrote is visible. Implementations wrap lost races in
// ErrRetryable.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes the ledger needs. Lookups return an
// error wrapping ErrNotFound for missing rows. Lock* methods hold a row lock
// until the transaction ends.
type Tx interface {
	// LockSubject locks a non-deleted question or answer.
	LockSubject(ctx context.Context, subjectType SubjectType, id int) (Subject, error)
	// FindVote returns nil when the voter has no vote on the subject.
	FindVote(ctx context.Context, subjectType SubjectType, subjectID, voterID int) (*VoteType, error)
	InsertVote(ctx context.Context, subjectType SubjectType, subjectID, voterID int, voteType VoteType) error
	UpdateVote(ctx context.Context, subjectType SubjectType, subjectID, voterID int, voteType VoteType) error
	DeleteVote(ctx context.Context, subjectType SubjectType, subjectID, voterID int) error
	// AddVotes applies delta to the subject's counter and returns the new total.
	AddVotes(ctx context.Context, subjectType SubjectType, id, delta int) (int, error)

	AddReputation(ctx context.Context, userID, delta int) error
	AddAnswersCount(ctx context.Context, userID, delta int) error

	FindAnswer(ctx context.Context, id int) (Answer, error)
	LockAnswer(ctx context.Context, id int) (Answer, error)
	LockQuestion(ctx context.Context, id int) (Question, error)
	// LockAcceptedAnswer returns nil when the question has no accepted answer.
	LockAcceptedAnswer(ctx context.Context, questionID int) (*Answer, error)
	SetAnswerAccepted(ctx context.Context, answerID int, accepted bool) error
	SetAcceptedAnswer(ctx context.Context, questionID int, answerID *int) error
	MarkAnswerDeleted(ctx context.Context, answerID int) error
}
