package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender texts the recipient of an event. Events without a recipient,
// without a message template, or whose recipient has no phone number are
// handed to the fallback sender.
type TwilioSender struct {
	api       messageCreator
	from      string
	directory Directory
	fallback  Sender
	logger    *slog.Logger
}

func NewTwilioSender(accountSID, authToken, from string, directory Directory, logger *slog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioSender(client.Api, from, directory, logger)
}

func newTwilioSender(api messageCreator, from string, directory Directory, logger *slog.Logger) *TwilioSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioSender{
		api:       api,
		from:      from,
		directory: directory,
		fallback:  NewLogSender(logger),
		logger:    logger,
	}
}

func (s *TwilioSender) Send(ctx context.Context, e ledger.Event) error {
	body := messageBody(e)
	if e.RecipientID == 0 || body == "" {
		return s.fallback.Send(ctx, e)
	}

	phone, err := s.directory.Phone(ctx, e.RecipientID)
	if err != nil {
		return err
	}
	if phone == "" {
		return s.fallback.Send(ctx, e)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("send sms for %s %s: %w", e.Type, e.ID, err)
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	s.logger.Info("sms notification sent",
		"event", "notify_sms_sent",
		"module", "notify",
		"layer", "platform",
		"event_id", e.ID,
		"event_type", e.Type,
		"recipient_id", e.RecipientID,
		"message_sid", sid,
	)
	return nil
}
