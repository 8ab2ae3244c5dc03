// Package memstore is an in-process ledger.Store. A transaction works on a
// copy of the state that replaces the live state only on success, so a
// failing operation leaves no partial writes behind.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
)

type User struct {
	ID             int
	Reputation     int
	QuestionsCount int
	AnswersCount   int
}

type Question struct {
	ID               int
	AuthorID         int
	Votes            int
	AcceptedAnswerID *int
	IsDeleted        bool
}

type Answer struct {
	ID            int
	QuestionID    int
	AuthorID      *int
	Votes         int
	IsAIGenerated bool
	IsAccepted    bool
	IsDeleted     bool
}

type voteKey struct {
	subjectType ledger.SubjectType
	subjectID   int
	voterID     int
}

type state struct {
	users     map[int]User
	questions map[int]Question
	answers   map[int]Answer
	votes     map[voteKey]ledger.VoteType
}

func (s *state) clone() *state {
	return &state{
		users:     maps.Clone(s.users),
		questions: maps.Clone(s.questions),
		answers:   maps.Clone(s.answers),
		votes:     maps.Clone(s.votes),
	}
}

// Store serializes transactions behind a single mutex.
type Store struct {
	mu    sync.Mutex
	state *state

	// Fault, when set, is called before every write with the Tx method name.
	// A non-nil result aborts the transaction with that error.
	Fault func(op string) error
}

func New() *Store {
	return &Store{state: &state{
		users:     make(map[int]User),
		questions: make(map[int]Question),
		answers:   make(map[int]Answer),
		votes:     make(map[voteKey]ledger.VoteType),
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{state: working, fault: s.Fault}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

func (s *Store) PutQuestion(q Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.questions[q.ID] = q
}

func (s *Store) PutAnswer(a Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.answers[a.ID] = a
}

func (s *Store) User(id int) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.users[id]
}

func (s *Store) Question(id int) Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.questions[id]
}

func (s *Store) Answer(id int) Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.answers[id]
}

// Vote returns the voter's current vote on a subject, nil if none.
func (s *Store) Vote(subjectType ledger.SubjectType, subjectID, voterID int) *ledger.VoteType {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.votes[voteKey{subjectType, subjectID, voterID}]
	if !ok {
		return nil
	}
	return &v
}

// VoteSum returns the signed count of vote rows on a subject.
func (s *Store) VoteSum(subjectType ledger.SubjectType, subjectID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for k, v := range s.state.votes {
		if k.subjectType != subjectType || k.subjectID != subjectID {
			continue
		}
		if v == ledger.VoteUp {
			sum++
		} else {
			sum--
		}
	}
	return sum
}

// VoteRows returns the number of stored vote rows.
func (s *Store) VoteRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.votes)
}

type tx struct {
	state *state
	fault func(op string) error
}

func (t *tx) write(op string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op)
}

func (t *tx) LockSubject(_ context.Context, subjectType ledger.SubjectType, id int) (ledger.Subject, error) {
	switch subjectType {
	case ledger.SubjectQuestion:
		q, ok := t.state.questions[id]
		if !ok || q.IsDeleted {
			return ledger.Subject{}, fmt.Errorf("question %d: %w", id, ledger.ErrNotFound)
		}
		author := q.AuthorID
		return ledger.Subject{Type: subjectType, ID: id, AuthorID: &author, Votes: q.Votes}, nil
	case ledger.SubjectAnswer:
		a, ok := t.state.answers[id]
		if !ok || a.IsDeleted || t.state.questions[a.QuestionID].IsDeleted {
			return ledger.Subject{}, fmt.Errorf("answer %d: %w", id, ledger.ErrNotFound)
		}
		return ledger.Subject{Type: subjectType, ID: id, AuthorID: copyInt(a.AuthorID), Votes: a.Votes}, nil
	default:
		return ledger.Subject{}, ledger.ErrInvalidSubjectType
	}
}

func (t *tx) FindVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int) (*ledger.VoteType, error) {
	v, ok := t.state.votes[voteKey{subjectType, subjectID, voterID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *tx) InsertVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int, voteType ledger.VoteType) error {
	if err := t.write("InsertVote"); err != nil {
		return err
	}
	key := voteKey{subjectType, subjectID, voterID}
	if _, exists := t.state.votes[key]; exists {
		return fmt.Errorf("duplicate vote: %w", ledger.ErrRetryable)
	}
	t.state.votes[key] = voteType
	return nil
}

func (t *tx) UpdateVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int, voteType ledger.VoteType) error {
	if err := t.write("UpdateVote"); err != nil {
		return err
	}
	t.state.votes[voteKey{subjectType, subjectID, voterID}] = voteType
	return nil
}

func (t *tx) DeleteVote(_ context.Context, subjectType ledger.SubjectType, subjectID, voterID int) error {
	if err := t.write("DeleteVote"); err != nil {
		return err
	}
	delete(t.state.votes, voteKey{subjectType, subjectID, voterID})
	return nil
}

func (t *tx) AddVotes(_ context.Context, subjectType ledger.SubjectType, id, delta int) (int, error) {
	if err := t.write("AddVotes"); err != nil {
		return 0, err
	}
	switch subjectType {
	case ledger.SubjectQuestion:
		q := t.state.questions[id]
		q.Votes += delta
		t.state.questions[id] = q
		return q.Votes, nil
	case ledger.SubjectAnswer:
		a := t.state.answers[id]
		a.Votes += delta
		t.state.answers[id] = a
		return a.Votes, nil
	default:
		return 0, ledger.ErrInvalidSubjectType
	}
}

func (t *tx) AddReputation(_ context.Context, userID, delta int) error {
	if err := t.write("AddReputation"); err != nil {
		return err
	}
	u := t.state.users[userID]
	u.ID = userID
	u.Reputation += delta
	t.state.users[userID] = u
	return nil
}

func (t *tx) AddAnswersCount(_ context.Context, userID, delta int) error {
	if err := t.write("AddAnswersCount"); err != nil {
		return err
	}
	u := t.state.users[userID]
	u.ID = userID
	u.AnswersCount += delta
	t.state.users[userID] = u
	return nil
}

func (t *tx) FindAnswer(_ context.Context, id int) (ledger.Answer, error) {
	a, ok := t.state.answers[id]
	if !ok {
		return ledger.Answer{}, fmt.Errorf("answer %d: %w", id, ledger.ErrNotFound)
	}
	return toLedgerAnswer(a), nil
}

func (t *tx) LockAnswer(ctx context.Context, id int) (ledger.Answer, error) {
	return t.FindAnswer(ctx, id)
}

func (t *tx) LockQuestion(_ context.Context, id int) (ledger.Question, error) {
	q, ok := t.state.questions[id]
	if !ok {
		return ledger.Question{}, fmt.Errorf("question %d: %w", id, ledger.ErrNotFound)
	}
	return ledger.Question{
		ID:               q.ID,
		AuthorID:         q.AuthorID,
		AcceptedAnswerID: copyInt(q.AcceptedAnswerID),
		IsDeleted:        q.IsDeleted,
	}, nil
}

func (t *tx) LockAcceptedAnswer(_ context.Context, questionID int) (*ledger.Answer, error) {
	for _, a := range t.state.answers {
		if a.QuestionID == questionID && a.IsAccepted {
			found := toLedgerAnswer(a)
			return &found, nil
		}
	}
	return nil, nil
}

func (t *tx) SetAnswerAccepted(_ context.Context, answerID int, accepted bool) error {
	if err := t.write("SetAnswerAccepted"); err != nil {
		return err
	}
	a, ok := t.state.answers[answerID]
	if !ok {
		return fmt.Errorf("answer %d: %w", answerID, ledger.ErrNotFound)
	}
	if accepted {
		for _, other := range t.state.answers {
			if other.ID != answerID && other.QuestionID == a.QuestionID && other.IsAccepted {
				return fmt.Errorf("question %d already has accepted answer %d", a.QuestionID, other.ID)
			}
		}
	}
	a.IsAccepted = accepted
	t.state.answers[answerID] = a
	return nil
}

func (t *tx) SetAcceptedAnswer(_ context.Context, questionID int, answerID *int) error {
	if err := t.write("SetAcceptedAnswer"); err != nil {
		return err
	}
	q := t.state.questions[questionID]
	q.AcceptedAnswerID = copyInt(answerID)
	t.state.questions[questionID] = q
	return nil
}

func (t *tx) MarkAnswerDeleted(_ context.Context, answerID int) error {
	if err := t.write("MarkAnswerDeleted"); err != nil {
		return err
	}
	a := t.state.answers[answerID]
	a.IsDeleted = true
	t.state.answers[answerID] = a
	return nil
}

func toLedgerAnswer(a Answer) ledger.Answer {
	return ledger.Answer{
		ID:            a.ID,
		QuestionID:    a.QuestionID,
		AuthorID:      copyInt(a.AuthorID),
		IsAIGenerated: a.IsAIGenerated,
		IsAccepted:    a.IsAccepted,
		IsDeleted:     a.IsDeleted,
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ ledger.Store = (*Store)(nil)
var _ ledger.Tx = (*tx)(nil)
