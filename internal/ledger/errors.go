package ledger

import "errors"

// Error kinds. Every error returned by Service wraps exactly one of these.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// ErrRetryable is returned by a Store when the transaction lost a race
// (serialization failure, deadlock, duplicate vote row) and may be re-run.
var ErrRetryable = errors.New("retryable storage conflict")

var (
	ErrInvalidVoteType    = kindError(ErrBadRequest, "vote type must be up or down")
	ErrInvalidSubjectType = kindError(ErrBadRequest, "subject type must be question or answer")
	ErrSelfVote           = kindError(ErrForbidden, "you cannot vote on your own content")

	ErrQuestionNotFound = kindError(ErrNotFound, "question not found")
	ErrAnswerNotFound   = kindError(ErrNotFound, "answer not found")

	ErrNotQuestionAuthor = kindError(ErrForbidden, "only the question author can accept answers")
	ErrAcceptOwnAnswer   = kindError(ErrBadRequest, "you cannot accept your own answer")
	ErrAcceptAIAnswer    = kindError(ErrBadRequest, "AI-generated answers cannot be accepted")

	ErrNotAnswerAuthor = kindError(ErrForbidden, "you can only delete your own answers")
	ErrDeleteAIAnswer  = kindError(ErrBadRequest, "AI-generated answers cannot be deleted")

	ErrTooManyRetries = kindError(ErrConflict, "the request conflicted with concurrent updates, please retry")
)

type ledgerError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &ledgerError{kind: kind, msg: msg}
}

func (e *ledgerError) Error() string { return e.msg }

func (e *ledgerError) Unwrap() error { return e.kind }

// Kind returns the error kind sentinel wrapped by err, or ErrInternal.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrBadRequest, ErrForbidden, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}
