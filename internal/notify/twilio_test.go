package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
)

type fakeMessages struct {
	sent []*twilioApi.CreateMessageParams
	err  error
}

func (f *fakeMessages) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

type phoneBook map[int]string

func (p phoneBook) Phone(_ context.Context, userID int) (string, error) {
	return p[userID], nil
}

func TestTwilioSenderTextsAcceptedAnswerAuthor(t *testing.T) {
	api := &fakeMessages{}
	s := newTwilioSender(api, "+15550000000", phoneBook{42: "+15551234567"}, nil)

	err := s.Send(context.Background(), ledger.Event{
		ID: "evt-1", Type: ledger.EventAnswerAccepted, QuestionID: 7, AnswerID: 9, AuthorID: 42, RecipientID: 42,
	})
	require.NoError(t, err)

	require.Len(t, api.sent, 1)
	assert.Equal(t, "+15551234567", *api.sent[0].To)
	assert.Equal(t, "+15550000000", *api.sent[0].From)
	assert.Contains(t, *api.sent[0].Body, "answer #9 was accepted")
}

func TestTwilioSenderFallsBackWithoutPhone(t *testing.T) {
	api := &fakeMessages{}
	s := newTwilioSender(api, "+15550000000", phoneBook{}, nil)

	require.NoError(t, s.Send(context.Background(), ledger.Event{Type: ledger.EventAnswerCreated, QuestionID: 1, RecipientID: 5}))
	require.NoError(t, s.Send(context.Background(), ledger.Event{Type: ledger.EventQuestionCreated, QuestionID: 1}))
	assert.Empty(t, api.sent)
}

func TestTwilioSenderReportsProviderErrors(t *testing.T) {
	api := &fakeMessages{err: errors.New("21211 invalid To number")}
	s := newTwilioSender(api, "+15550000000", phoneBook{5: "not-a-number"}, nil)

	err := s.Send(context.Background(), ledger.Event{Type: ledger.EventAnswerCreated, QuestionID: 1, RecipientID: 5})
	assert.ErrorContains(t, err, "invalid To number")
}

func TestTwilioSenderWelcomesNewUsers(t *testing.T) {
	api := &fakeMessages{}
	s := newTwilioSender(api, "+15550000000", phoneBook{8: "+15557654321"}, nil)

	require.NoError(t, s.Send(context.Background(), ledger.Event{Type: ledger.EventUserCreated, AuthorID: 8, RecipientID: 8}))
	require.Len(t, api.sent, 1)
	assert.Contains(t, *api.sent[0].Body, "Welcome to DevQuery")

	// Fresh accounts rarely have a phone yet; those are only logged.
	require.NoError(t, s.Send(context.Background(), ledger.Event{Type: ledger.EventUserCreated, AuthorID: 9, RecipientID: 9}))
	assert.Len(t, api.sent, 1)
}
