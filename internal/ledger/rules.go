package ledger

import "sort"

type VoteAction int

const (
	VoteInsert VoteAction = iota + 1
	VoteUpdate
	VoteDelete
)

// VotePlan is the complete effect of one vote request.
type VotePlan struct {
	Action          VoteAction
	VotesDelta      int
	ReputationDelta int
	// Current is the voter's vote after the transition, nil after a toggle-off.
	Current *VoteType
}

// PlanVote resolves a vote request against the voter's existing vote.
// Repeating the same vote removes it; the opposite vote flips it in place.
func PlanVote(subjectType SubjectType, existing *VoteType, requested VoteType) VotePlan {
	switch {
	case existing == nil:
		return VotePlan{
			Action:          VoteInsert,
			VotesDelta:      voteWeight(requested),
			ReputationDelta: reputationWeight(subjectType, requested),
			Current:         &requested,
		}
	case *existing == requested:
		return VotePlan{
			Action:          VoteDelete,
			VotesDelta:      -voteWeight(requested),
			ReputationDelta: -reputationWeight(subjectType, requested),
		}
	default:
		return VotePlan{
			Action:          VoteUpdate,
			VotesDelta:      voteWeight(requested) - voteWeight(*existing),
			ReputationDelta: reputationWeight(subjectType, requested) - reputationWeight(subjectType, *existing),
			Current:         &requested,
		}
	}
}

func voteWeight(v VoteType) int {
	if v == VoteUp {
		return 1
	}
	return -1
}

func reputationWeight(subjectType SubjectType, v VoteType) int {
	if v == VoteDown {
		return DownvoteReputation
	}
	if subjectType == SubjectAnswer {
		return AnswerUpvoteReputation
	}
	return QuestionUpvoteReputation
}

// CheckVote rejects votes on one's own content.
func CheckVote(subject Subject, voterID int) error {
	if subject.AuthorID != nil && *subject.AuthorID == voterID {
		return ErrSelfVote
	}
	return nil
}

// ReputationChange moves one author's reputation by Delta.
type ReputationChange struct {
	UserID int
	Delta  int
}

// AcceptancePlan lists every write of an accept or unaccept.
type AcceptancePlan struct {
	Accepted bool
	// Unaccept holds answers whose isAccepted flag is cleared, applied
	// before Accept so the one-accepted-answer index never sees two rows.
	Unaccept []int
	// Accept is the answer whose flag is set, zero when unaccepting.
	Accept           int
	AcceptedAnswerID *int
	Reputation       []ReputationChange
}

// CheckAcceptance applies the acceptance preconditions in order.
func CheckAcceptance(q Question, a Answer, requesterID int) error {
	if q.AuthorID != requesterID {
		return ErrNotQuestionAuthor
	}
	if a.AuthorID != nil && *a.AuthorID == requesterID {
		return ErrAcceptOwnAnswer
	}
	if a.IsAIGenerated {
		return ErrAcceptAIAnswer
	}
	return nil
}

// PlanAcceptance toggles a's acceptance. displaced is the question's
// currently accepted answer when it is not a, otherwise nil.
func PlanAcceptance(a Answer, displaced *Answer) AcceptancePlan {
	var changes []ReputationChange

	if a.IsAccepted {
		if a.AuthorID != nil {
			changes = append(changes, ReputationChange{UserID: *a.AuthorID, Delta: -AcceptedAnswerReputation})
		}
		return AcceptancePlan{
			Accepted:   false,
			Unaccept:   []int{a.ID},
			Reputation: mergeReputation(changes),
		}
	}

	plan := AcceptancePlan{Accepted: true, Accept: a.ID}
	if displaced != nil && displaced.ID != a.ID {
		plan.Unaccept = []int{displaced.ID}
		if displaced.AuthorID != nil {
			changes = append(changes, ReputationChange{UserID: *displaced.AuthorID, Delta: -AcceptedAnswerReputation})
		}
	}
	if a.AuthorID != nil {
		changes = append(changes, ReputationChange{UserID: *a.AuthorID, Delta: AcceptedAnswerReputation})
	}
	id := a.ID
	plan.AcceptedAnswerID = &id
	plan.Reputation = mergeReputation(changes)
	return plan
}

// CheckDeletion applies the deletion preconditions in order.
func CheckDeletion(a Answer, requesterID int) error {
	if a.IsAIGenerated {
		return ErrDeleteAIAnswer
	}
	if a.AuthorID == nil || *a.AuthorID != requesterID {
		return ErrNotAnswerAuthor
	}
	return nil
}

// DeletionPlan lists every write of a soft delete.
type DeletionPlan struct {
	// DecrementAnswersCount is the author whose answersCount drops, zero if none.
	DecrementAnswersCount int
	ClearAcceptance       bool
	Reputation            []ReputationChange
}

// PlanDeletion soft-deletes a. With reverseBonus set, deleting an accepted
// answer also takes back the acceptance reputation.
func PlanDeletion(a Answer, reverseBonus bool) DeletionPlan {
	plan := DeletionPlan{ClearAcceptance: a.IsAccepted}
	if a.AuthorID != nil {
		plan.DecrementAnswersCount = *a.AuthorID
		if a.IsAccepted && reverseBonus {
			plan.Reputation = []ReputationChange{{UserID: *a.AuthorID, Delta: -AcceptedAnswerReputation}}
		}
	}
	return plan
}

// mergeReputation sums changes per user, drops zero deltas and orders the
// result by user id so concurrent transactions lock users in the same order.
func mergeReputation(changes []ReputationChange) []ReputationChange {
	if len(changes) == 0 {
		return nil
	}
	byUser := make(map[int]int, len(changes))
	for _, c := range changes {
		byUser[c.UserID] += c.Delta
	}
	out := make([]ReputationChange, 0, len(byUser))
	for userID, delta := range byUser {
		if delta != 0 {
			out = append(out, ReputationChange{UserID: userID, Delta: delta})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) == 0 {
		return nil
	}
	return out
}
