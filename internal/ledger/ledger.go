// Package ledger keeps votes, reputation and answer acceptance consistent.
//
// Every operation reads the rows it depends on under a row lock, plans the
// complete write set, and applies it inside a single store transaction using
// relative counter deltas.
package ledger

import "strings"

type SubjectType string

const (
	SubjectQuestion SubjectType = "question"
	SubjectAnswer   SubjectType = "answer"
)

func (t SubjectType) Valid() bool {
	return t == SubjectQuestion || t == SubjectAnswer
}

type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// ParseVoteType accepts "up"/"down" and the "upvote"/"downvote" spellings
// sent by older clients.
func ParseVoteType(raw string) (VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "upvote":
		return VoteUp, nil
	case "down", "downvote":
		return VoteDown, nil
	default:
		return "", ErrInvalidVoteType
	}
}

// Reputation awarded to content authors.
const (
	QuestionUpvoteReputation = 5
	AnswerUpvoteReputation   = 10
	DownvoteReputation       = -2
	AcceptedAnswerReputation = 15
)

// Subject is a votable row as seen by the vote engine.
type Subject struct {
	Type     SubjectType
	ID       int
	AuthorID *int
	Votes    int
}

type Question struct {
	ID               int
	AuthorID         int
	AcceptedAnswerID *int
	IsDeleted        bool
}

type Answer struct {
	ID            int
	QuestionID    int
	AuthorID      *int
	IsAIGenerated bool
	IsAccepted    bool
	IsDeleted     bool
}

// VoteResult is returned by CastVote. UserVote is nil after a toggle-off.
type VoteResult struct {
	Votes    int       `json:"votes"`
	UserVote *VoteType `json:"userVote"`
}

type AcceptResult struct {
	Accepted bool `json:"accepted"`
}
