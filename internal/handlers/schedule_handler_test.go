package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
	"github.com/tryexperimenter/experimenter-api/internal/models"
	"github.com/tryexperimenter/experimenter-api/internal/services"
	"github.com/tryexperimenter/experimenter-api/internal/tabular"
)

type emptySource struct{}

func (emptySource) Fetch(context.Context, string, map[string]any) ([]tabular.Record, error) {
	return nil, nil
}

type noopActionStore struct{}

func (noopActionStore) UpdateStatuses(context.Context, []services.ActionStatusUpdate) error {
	return nil
}

func (noopActionStore) RecordEmails(context.Context, []models.SubGroupActionEmail) error {
	return nil
}

type signalingMailer struct{ sent chan services.OutboundEmail }

func (m *signalingMailer) Send(_ context.Context, msg services.OutboundEmail) (*services.SendReceipt, error) {
	m.sent <- msg
	return &services.SendReceipt{Accepted: true}, nil
}

func (m *signalingMailer) CancelBatch(context.Context, string) error { return nil }

type noopShortener struct{}

func (noopShortener) Shorten(_ context.Context, longURL string) (string, error) {
	return longURL, nil
}

func newScheduleApp(mailer services.Mailer) *fiber.App {
	scheduler := services.NewSchedulerService(
		emptySource{}, noopActionStore{}, mailer, noopShortener{}, alerting.New(false),
		services.SchedulerConfig{
			MinLead:       30 * time.Minute,
			MaxHorizon:    72 * time.Hour,
			SenderEmail:   "experiments@tryexperimenter.com",
			OperatorEmail: "ops@tryexperimenter.com",
			SiteBaseURL:   "https://tryexperimenter.com",
		})
	handler := NewScheduleHandler(scheduler, "secret-code", 10*time.Millisecond)

	app := fiber.New()
	app.Get("/v1/schedule-messages/", handler.ScheduleMessages)
	return app
}

func TestScheduleMessagesBadAuthCode(t *testing.T) {
	mailer := &signalingMailer{sent: make(chan services.OutboundEmail, 1)}
	app := newScheduleApp(mailer)

	req := httptest.NewRequest("GET", "/v1/schedule-messages/?auth_code=wrong", nil)
	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.ScheduleAuthError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "True", body.Error)
	require.Equal(t, "authorization code incorrect", body.Message)

	select {
	case <-mailer.sent:
		t.Fatal("run must not start on a bad auth code")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleMessagesQueuesRun(t *testing.T) {
	mailer := &signalingMailer{sent: make(chan services.OutboundEmail, 1)}
	app := newScheduleApp(mailer)

	req := httptest.NewRequest("GET", "/v1/schedule-messages/?auth_code=secret-code", nil)
	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.ScheduleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "schedule_messages() task queued", body.Message)

	// The detached run sees no candidates and mails the operator summary.
	select {
	case msg := <-mailer.sent:
		require.Equal(t, "ops@tryexperimenter.com", msg.To)
	case <-time.After(2 * time.Second):
		t.Fatal("detached run never reported to the operator")
	}
}
