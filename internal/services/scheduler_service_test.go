package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/models"
	"github.com/tryexperimenter/experimenter-api/internal/tabular"
)

type fakeMailer struct {
	sent     []OutboundEmail
	rejectTo map[string]bool
	errTo    map[string]error
}

func (f *fakeMailer) Send(_ context.Context, msg OutboundEmail) (*SendReceipt, error) {
	f.sent = append(f.sent, msg)
	if err := f.errTo[msg.To]; err != nil {
		return nil, err
	}
	if f.rejectTo[msg.To] {
		return &SendReceipt{Accepted: false, ErrorMessage: "provider refused the message"}, nil
	}
	return &SendReceipt{
		Accepted:   true,
		XMessageID: "xm-" + msg.To,
		BatchID:    "batch-" + msg.To,
		EnqueuedAt: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		Raw:        json.RawMessage(`{"status_code":202}`),
	}, nil
}

func (f *fakeMailer) CancelBatch(context.Context, string) error { return nil }

type fakeShortener struct{ err error }

func (f *fakeShortener) Shorten(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://sho.rt/abc", nil
}

type fakeActionStore struct {
	updates []ActionStatusUpdate
	emails  []models.SubGroupActionEmail
}

func (f *fakeActionStore) UpdateStatuses(_ context.Context, updates []ActionStatusUpdate) error {
	f.updates = append(f.updates, updates...)
	return nil
}

func (f *fakeActionStore) RecordEmails(_ context.Context, emails []models.SubGroupActionEmail) error {
	f.emails = append(f.emails, emails...)
	return nil
}

const testActionID = "6f1e0a2a-9d5b-4d6c-8f3e-2b7a1c4d5e6f"

func candidateRow(overrides tabular.Record) tabular.Record {
	row := tabular.Record{
		"sub_group_action_id":       testActionID,
		"sub_group_id":              "sg-1",
		"first_name":                "Ada",
		"user_email":                "ada@example.com",
		"url_stub_experimenter_log": "ada-log",
		"group_name":                "Sleep Experiments",
		"sub_group_name":            "Sleep - Week 2",
		"email_subject":             "Week reminder for {first_name}",
		"email_body":                "Try {experiment_prompts[0]}. Record: {url_record_observations}. Log: {url_experimenter_log}",
		"action_datetime":           "2024-03-05 09:00:00",
		"status":                    models.ActionMessageToBeScheduled,
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func newTestScheduler(source tabular.Source, store ActionStore, mailer Mailer, short Shortener) *SchedulerService {
	svc := NewSchedulerService(source, store, mailer, short, alerting.New(false), SchedulerConfig{
		MinLead:           30 * time.Minute,
		MaxHorizon:        72 * time.Hour,
		SenderEmail:       "experiments@tryexperimenter.com",
		SenderDisplayName: "Experimenter",
		OperatorEmail:     "ops@tryexperimenter.com",
		SiteBaseURL:       "https://tryexperimenter.com",
	})
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }
	return svc
}

func schedulerSource(candidates []tabular.Record) *fakeSource {
	return &fakeSource{rows: map[string][]tabular.Record{
		tabular.RelMessageCandidates: candidates,
		tabular.RelExperimentPrompts: {
			{"sub_group_id": "sg-1", "experiment_prompt": "Go to bed by 10pm"},
		},
	}}
}

func TestScheduleMessagesHappyPath(t *testing.T) {
	mailer := &fakeMailer{}
	store := &fakeActionStore{}
	svc := newTestScheduler(schedulerSource([]tabular.Record{candidateRow(nil)}), store, mailer, &fakeShortener{})

	outcome, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Scheduled)
	require.Zero(t, outcome.Failed)

	require.Len(t, mailer.sent, 2)
	user := mailer.sent[0]
	require.Equal(t, "ada@example.com", user.To)
	require.Equal(t, "Week reminder for Ada", user.Subject)
	require.Contains(t, user.HTMLBody, "Try Go to bed by 10pm")
	require.Contains(t, user.HTMLBody, "https://sho.rt/abc")
	require.Contains(t, user.HTMLBody, "tryexperimenter.com/ada-log")
	require.True(t, user.AddUnsubscribeLink)
	require.NotNil(t, user.SendAt)
	require.True(t, user.SendAt.Equal(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)))

	require.Len(t, store.updates, 1)
	require.Equal(t, ActionStatusUpdate{
		ActionID: testActionID,
		Status:   models.ActionMessageScheduled,
	}, store.updates[0])

	require.Len(t, store.emails, 1)
	audit := store.emails[0]
	require.Equal(t, uuid.MustParse(testActionID), audit.SubGroupActionID)
	require.Equal(t, "xm-ada@example.com", audit.XMessageID)
	require.Equal(t, "ada@example.com", audit.Recipient)
	require.True(t, audit.ScheduledDatetime.Equal(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)))

	operator := mailer.sent[1]
	require.Equal(t, "ops@tryexperimenter.com", operator.To)
	require.Contains(t, operator.Subject, "scheduled: 1, failed: 0")
	require.False(t, operator.AddUnsubscribeLink)
	require.Nil(t, operator.SendAt)
}

func TestScheduleMessagesBlankRequiredFieldFailsTheItem(t *testing.T) {
	mailer := &fakeMailer{}
	store := &fakeActionStore{}
	rows := []tabular.Record{candidateRow(tabular.Record{"first_name": ""})}
	svc := newTestScheduler(schedulerSource(rows), store, mailer, &fakeShortener{})

	outcome, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, outcome.Scheduled)
	require.Equal(t, 1, outcome.Failed)

	// Only the operator summary went out.
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "ops@tryexperimenter.com", mailer.sent[0].To)

	require.Len(t, store.updates, 1)
	require.Equal(t, models.ActionMessageFailedToSchedule, store.updates[0].Status)
	require.Contains(t, store.updates[0].StatusNote, "email_subject")
	require.Empty(t, store.emails)
}

func TestScheduleMessagesIsolatesItemFailures(t *testing.T) {
	bobID := "b2c3d4e5-f6a7-4b8c-9d0e-1f2a3b4c5d6e"
	mailer := &fakeMailer{errTo: map[string]error{"bob@example.com": errors.New("timeout")}}
	store := &fakeActionStore{}
	rows := []tabular.Record{
		candidateRow(nil),
		candidateRow(tabular.Record{
			"sub_group_action_id": bobID,
			"first_name":          "Bob",
			"user_email":          "bob@example.com",
		}),
	}
	svc := newTestScheduler(schedulerSource(rows), store, mailer, &fakeShortener{})

	outcome, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Scheduled)
	require.Equal(t, 1, outcome.Failed)

	require.Len(t, store.updates, 2)
	require.Equal(t, models.ActionMessageScheduled, store.updates[0].Status)
	require.Equal(t, models.ActionMessageFailedToSchedule, store.updates[1].Status)
	require.Contains(t, store.updates[1].StatusNote, bobID)

	require.Len(t, store.emails, 1)
	require.Equal(t, "ada@example.com", store.emails[0].Recipient)
}

func TestScheduleMessagesDegradesToLongURL(t *testing.T) {
	mailer := &fakeMailer{}
	store := &fakeActionStore{}
	svc := newTestScheduler(schedulerSource([]tabular.Record{candidateRow(nil)}),
		store, mailer, &fakeShortener{err: errors.New("short.io down")})

	outcome, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Scheduled)

	body := mailer.sent[0].HTMLBody
	require.Contains(t, body, "https://tryexperimenter.com/observations?first_name=Ada&user_email=ada%40example.com&experiments=wk2")
}

func TestScheduleMessagesNoCandidates(t *testing.T) {
	mailer := &fakeMailer{}
	store := &fakeActionStore{}
	svc := newTestScheduler(schedulerSource(nil), store, mailer, &fakeShortener{})

	outcome, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "No messages to schedule.", outcome.Message)

	require.Len(t, mailer.sent, 1)
	require.Contains(t, mailer.sent[0].Subject, "no messages to schedule")
	require.Empty(t, store.updates)
	require.Empty(t, store.emails)
}

func TestScheduleMessagesBadWeekNameFailsRun(t *testing.T) {
	rows := []tabular.Record{candidateRow(tabular.Record{"sub_group_name": "Kickoff"})}
	svc := newTestScheduler(schedulerSource(rows), &fakeActionStore{}, &fakeMailer{}, &fakeShortener{})

	_, err := svc.Run(context.Background())
	require.ErrorContains(t, err, "no week number")
}
