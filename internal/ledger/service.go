package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

type Options struct {
	// MaxAttempts bounds how often an operation is re-run after ErrRetryable.
	MaxAttempts int
	// ReverseAcceptBonusOnDelete takes back the acceptance reputation when an
	// accepted answer is deleted.
	ReverseAcceptBonusOnDelete bool
	Notifier                   Notifier
	Logger                     *slog.Logger
}

// Service is the vote and acceptance ledger.
type Service struct {
	store        Store
	notifier     Notifier
	logger       *slog.Logger
	maxAttempts  int
	reverseBonus bool
	retryBackoff time.Duration
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		maxAttempts:  opts.MaxAttempts,
		reverseBonus: opts.ReverseAcceptBonusOnDelete,
		retryBackoff: 10 * time.Millisecond,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = defaultMaxAttempts
	}
	return s
}

// CastVote records voterID's vote on a question or answer and returns the
// subject's new vote total together with the voter's current vote.
func (s *Service) CastVote(ctx context.Context, subjectType SubjectType, subjectID, voterID int, voteType VoteType) (VoteResult, error) {
	if !subjectType.Valid() {
		return VoteResult{}, ErrInvalidSubjectType
	}
	if !voteType.Valid() {
		return VoteResult{}, ErrInvalidVoteType
	}

	var result VoteResult
	err := s.run(ctx, "cast_vote", func(ctx context.Context, tx Tx) error {
		subject, err := tx.LockSubject(ctx, subjectType, subjectID)
		if err != nil {
			return notFoundAs(err, subjectNotFound(subjectType))
		}
		if err := CheckVote(subject, voterID); err != nil {
			return err
		}

		existing, err := tx.FindVote(ctx, subjectType, subjectID, voterID)
		if err != nil {
			return err
		}
		plan := PlanVote(subjectType, existing, voteType)

		switch plan.Action {
		case VoteInsert:
			err = tx.InsertVote(ctx, subjectType, subjectID, voterID, voteType)
		case VoteUpdate:
			err = tx.UpdateVote(ctx, subjectType, subjectID, voterID, voteType)
		case VoteDelete:
			err = tx.DeleteVote(ctx, subjectType, subjectID, voterID)
		}
		if err != nil {
			return err
		}

		total, err := tx.AddVotes(ctx, subjectType, subjectID, plan.VotesDelta)
		if err != nil {
			return err
		}
		if subject.AuthorID != nil {
			if err := tx.AddReputation(ctx, *subject.AuthorID, plan.ReputationDelta); err != nil {
				return err
			}
		}

		result = VoteResult{Votes: total, UserVote: plan.Current}
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}
	return result, nil
}

// ToggleAcceptance accepts answerID, displacing any other accepted answer of
// the question, or unaccepts it when it is already accepted. Only the
// question author may call it.
func (s *Service) ToggleAcceptance(ctx context.Context, answerID, requesterID int) (AcceptResult, error) {
	var (
		result AcceptResult
		event  *Event
	)
	err := s.run(ctx, "toggle_acceptance", func(ctx context.Context, tx Tx) error {
		event = nil

		question, answer, err := lockQuestionAndAnswer(ctx, tx, answerID)
		if err != nil {
			return err
		}
		if question.IsDeleted {
			return ErrQuestionNotFound
		}
		if err := CheckAcceptance(question, answer, requesterID); err != nil {
			return err
		}

		var displaced *Answer
		if !answer.IsAccepted {
			current, err := tx.LockAcceptedAnswer(ctx, question.ID)
			if err != nil {
				return err
			}
			if current != nil && current.ID != answer.ID {
				displaced = current
			}
		}
		plan := PlanAcceptance(answer, displaced)

		for _, id := range plan.Unaccept {
			if err := tx.SetAnswerAccepted(ctx, id, false); err != nil {
				return err
			}
		}
		if plan.Accept != 0 {
			if err := tx.SetAnswerAccepted(ctx, plan.Accept, true); err != nil {
				return err
			}
		}
		if err := tx.SetAcceptedAnswer(ctx, question.ID, plan.AcceptedAnswerID); err != nil {
			return err
		}
		if err := applyReputation(ctx, tx, plan.Reputation); err != nil {
			return err
		}

		result = AcceptResult{Accepted: plan.Accepted}
		if plan.Accepted && answer.AuthorID != nil {
			event = &Event{
				Type:        EventAnswerAccepted,
				QuestionID:  question.ID,
				AnswerID:    answer.ID,
				AuthorID:    *answer.AuthorID,
				RecipientID: *answer.AuthorID,
			}
		}
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}

	if event != nil {
		s.Publish(ctx, *event)
	}
	return result, nil
}

// DeleteAnswer soft-deletes answerID on behalf of its author.
func (s *Service) DeleteAnswer(ctx context.Context, answerID, requesterID int) error {
	return s.run(ctx, "delete_answer", func(ctx context.Context, tx Tx) error {
		question, answer, err := lockQuestionAndAnswer(ctx, tx, answerID)
		if err != nil {
			return err
		}
		if err := CheckDeletion(answer, requesterID); err != nil {
			return err
		}
		plan := PlanDeletion(answer, s.reverseBonus)

		if err := tx.MarkAnswerDeleted(ctx, answer.ID); err != nil {
			return err
		}
		if plan.ClearAcceptance {
			if err := tx.SetAnswerAccepted(ctx, answer.ID, false); err != nil {
				return err
			}
			if question.AcceptedAnswerID != nil && *question.AcceptedAnswerID == answer.ID {
				if err := tx.SetAcceptedAnswer(ctx, question.ID, nil); err != nil {
					return err
				}
			}
		}
		if plan.DecrementAnswersCount != 0 {
			if err := tx.AddAnswersCount(ctx, plan.DecrementAnswersCount, -1); err != nil {
				return err
			}
		}
		return applyReputation(ctx, tx, plan.Reputation)
	})
}

// Publish hands event to the notifier on a context that outlives the
// request. It never fails.
func (s *Service) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	s.notifier.Notify(context.WithoutCancel(ctx), event)
}

// lockQuestionAndAnswer locks the answer's question before the answer so
// that all acceptance work on one question is serialized.
func lockQuestionAndAnswer(ctx context.Context, tx Tx, answerID int) (Question, Answer, error) {
	found, err := tx.FindAnswer(ctx, answerID)
	if err != nil {
		return Question{}, Answer{}, notFoundAs(err, ErrAnswerNotFound)
	}
	if found.IsDeleted {
		return Question{}, Answer{}, ErrAnswerNotFound
	}

	question, err := tx.LockQuestion(ctx, found.QuestionID)
	if err != nil {
		return Question{}, Answer{}, notFoundAs(err, ErrQuestionNotFound)
	}
	answer, err := tx.LockAnswer(ctx, answerID)
	if err != nil {
		return Question{}, Answer{}, notFoundAs(err, ErrAnswerNotFound)
	}
	if answer.IsDeleted {
		return Question{}, Answer{}, ErrAnswerNotFound
	}
	return question, answer, nil
}

func applyReputation(ctx context.Context, tx Tx, changes []ReputationChange) error {
	for _, c := range changes {
		if err := tx.AddReputation(ctx, c.UserID, c.Delta); err != nil {
			return err
		}
	}
	return nil
}

// run executes fn in a transaction, re-running it while the store reports
// ErrRetryable. Errors come back wrapped in one of the kind sentinels.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.store.WithinTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrRetryable) {
			break
		}
		s.logger.Warn("ledger transaction conflicted",
			"event", "ledger_tx_retry",
			"module", "ledger",
			"layer", "service",
			"operation", op,
			"attempt", attempt,
			"error", err.Error(),
		)
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrInternal, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.retryBackoff):
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRetryable):
		return ErrTooManyRetries
	case Kind(err) != ErrInternal:
		return err
	default:
		s.logger.Error("ledger transaction failed",
			"event", "ledger_tx_failed",
			"module", "ledger",
			"layer", "service",
			"operation", op,
			"error", err.Error(),
		)
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
}

func notFoundAs(err, target error) error {
	if errors.Is(err, ErrNotFound) {
		return target
	}
	return err
}

func subjectNotFound(subjectType SubjectType) error {
	if subjectType == SubjectAnswer {
		return ErrAnswerNotFound
	}
	return ErrQuestionNotFound
}
