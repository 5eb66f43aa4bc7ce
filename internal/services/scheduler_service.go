package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/models"
	"github.com/tryexperimenter/experimenter-api/internal/tabular"
	"gorm.io/datatypes"
)

// Mailer is the outbound send capability. A nil error with Accepted=false
// means the provider answered but refused the message.
type Mailer interface {
	Send(ctx context.Context, msg OutboundEmail) (*SendReceipt, error)
	CancelBatch(ctx context.Context, batchID string) error
}

type OutboundEmail struct {
	FromEmail       string
	FromDisplayName string
	To              string
	Subject         string
	HTMLBody        string
	// SendAt schedules the message instead of sending immediately.
	SendAt             *time.Time
	AddUnsubscribeLink bool
}

type SendReceipt struct {
	Accepted     bool
	XMessageID   string
	BatchID      string
	EnqueuedAt   time.Time
	ErrorMessage string
	Raw          json.RawMessage
}

// Shortener is the best-effort URL shortening capability.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// ActionStatusUpdate is one row of the batched status write-back.
type ActionStatusUpdate struct {
	ActionID   string
	Status     string
	StatusNote string
}

// ActionStore persists scheduling outcomes.
type ActionStore interface {
	UpdateStatuses(ctx context.Context, updates []ActionStatusUpdate) error
	RecordEmails(ctx context.Context, emails []models.SubGroupActionEmail) error
}

// SchedulerConfig carries the scheduling window and addressing.
type SchedulerConfig struct {
	// Window relative to now: no earlier than MinLead (time to schedule,
	// plus the provider's cutoff for scheduled sends), no later than
	// MaxHorizon (the furthest ahead the provider will schedule).
	MinLead    time.Duration
	MaxHorizon time.Duration

	SenderEmail       string
	SenderDisplayName string
	OperatorEmail     string
	SiteBaseURL       string
}

// Column table for the message-candidates relation. Template text stays raw
// so placeholder tokens survive untouched.
var messageColumns = []tabular.ColumnSpec{
	{Source: "sub_group_action_id", Target: "sub_group_action_id", Kind: tabular.KindRaw},
	{Source: "sub_group_id", Target: "sub_group_id", Kind: tabular.KindRaw},
	{Source: "first_name", Target: "first_name", Kind: tabular.KindRaw},
	{Source: "user_email", Target: "user_email", Kind: tabular.KindRaw},
	{Source: "url_stub_experimenter_log", Target: "url_stub_experimenter_log", Kind: tabular.KindRaw},
	{Source: "group_name", Target: "group_name", Kind: tabular.KindRaw},
	{Source: "sub_group_name", Target: "sub_group_name", Kind: tabular.KindRaw},
	{Source: "email_subject", Target: "email_subject", Kind: tabular.KindRaw},
	{Source: "email_body", Target: "email_body", Kind: tabular.KindRaw},
	{Source: "action_datetime", Target: "action_datetime", Kind: tabular.KindDatetime},
	{Source: "status", Target: "status", Kind: tabular.KindRaw},
}

// SchedulerService fills reminder templates for every retry-eligible action
// in the forward window and drives the send capability. A fetch or derive
// failure aborts the whole run; a fill or send failure is isolated to its
// single action.
type SchedulerService struct {
	source    tabular.Source
	store     ActionStore
	mailer    Mailer
	shortener Shortener
	notifier  *alerting.Notifier
	cfg       SchedulerConfig
	now       func() time.Time
}

func NewSchedulerService(source tabular.Source, store ActionStore, mailer Mailer, shortener Shortener, notifier *alerting.Notifier, cfg SchedulerConfig) *SchedulerService {
	return &SchedulerService{
		source:    source,
		store:     store,
		mailer:    mailer,
		shortener: shortener,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ScheduleOutcome summarizes one scheduling run.
type ScheduleOutcome struct {
	Scheduled int
	Failed    int
	Message   string
}

type messageCandidate struct {
	actionID     string
	subGroupID   string
	firstName    string
	userEmail    string
	urlStub      string
	groupName    string
	subGroupName string
	emailSubject string
	emailBody    string
	actionAt     time.Time

	urlRecord      string
	urlRecordPrior string
	urlLog         string

	status     string
	statusNote string
	xMessageID string
	batchID    string
	enqueuedAt time.Time
	raw        json.RawMessage
}

// Run executes one scheduling pass.
func (s *SchedulerService) Run(ctx context.Context) (*ScheduleOutcome, error) {
	outcome, err := s.run(ctx)
	if err != nil {
		slog.Error("schedule_messages run failed", "error", err.Error())
		s.notifier.Notify("API | schedule_messages", err)
		return nil, err
	}
	return outcome, nil
}

func (s *SchedulerService) run(ctx context.Context) (*ScheduleOutcome, error) {
	now := s.now().UTC()

	slog.Info("identify messages to schedule")
	raw, err := s.source.Fetch(ctx, tabular.RelMessageCandidates, map[string]any{
		"from": now.Add(s.cfg.MinLead),
		"to":   now.Add(s.cfg.MaxHorizon),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message candidates: %w", err)
	}

	rows, err := tabular.Normalize(raw, messageColumns)
	if err != nil {
		return nil, fmt.Errorf("normalize message candidates: %w", err)
	}

	if len(rows) == 0 {
		slog.Info("no messages to schedule")
		s.sendOperatorMail(ctx,
			fmt.Sprintf("schedule_messages() - %s - no messages to schedule", now.Format("2006-01-02")),
			"There were no messages to schedule.")
		return &ScheduleOutcome{Message: "No messages to schedule."}, nil
	}

	candidates := make([]messageCandidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, messageCandidate{
			actionID:     row.Get("sub_group_action_id"),
			subGroupID:   row.Get("sub_group_id"),
			firstName:    row.Get("first_name"),
			userEmail:    row.Get("user_email"),
			urlStub:      row.Get("url_stub_experimenter_log"),
			groupName:    row.Get("group_name"),
			subGroupName: row.Get("sub_group_name"),
			emailSubject: row.Get("email_subject"),
			emailBody:    row.Get("email_body"),
			actionAt:     row.Time("action_datetime"),
		})
	}

	slog.Info("identify experiment prompts to include in messages")
	prompts, err := s.promptsBySubGroup(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("fetch experiment prompts: %w", err)
	}

	slog.Info("generate urls to include in messages")
	if err := s.deriveURLs(ctx, candidates); err != nil {
		return nil, err
	}

	slog.Info("fill in templates and schedule emails")
	for i := range candidates {
		s.scheduleOne(ctx, &candidates[i], prompts[candidates[i].subGroupID])
	}

	s.persistOutcomes(ctx, candidates)

	return s.summarize(ctx, now, candidates), nil
}

// promptsBySubGroup returns each sub-group's experiment prompts in
// display_order, keyed by sub_group_id. A sub-group with no prompts (a rest
// week) simply has no entry.
func (s *SchedulerService) promptsBySubGroup(ctx context.Context, candidates []messageCandidate) (map[string][]string, error) {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !seen[c.subGroupID] {
			seen[c.subGroupID] = true
			ids = append(ids, c.subGroupID)
		}
	}

	rows, err := s.source.Fetch(ctx, tabular.RelExperimentPrompts, map[string]any{
		"sub_group_ids": ids,
	})
	if err != nil {
		return nil, err
	}

	// Rows arrive ordered by (sub_group_id, display_order); appending in
	// delivery order keeps each list sorted.
	prompts := make(map[string][]string)
	for _, row := range rows {
		id := row.Get("sub_group_id")
		prompts[id] = append(prompts[id], row.Get("experiment_prompt"))
	}
	return prompts, nil
}

// deriveURLs computes the observation-recording links (current and prior
// week) and the log link for every candidate. A week that cannot be parsed
// out of the sub-group name is fatal for the whole run, like any other
// derive failure.
func (s *SchedulerService) deriveURLs(ctx context.Context, candidates []messageCandidate) error {
	for i := range candidates {
		c := &candidates[i]

		week, err := parseWeek(c.subGroupName)
		if err != nil {
			return fmt.Errorf("sub_group_action_id %s: %w", c.actionID, err)
		}

		longCurrent := s.observationsURL(c.firstName, c.userEmail, week, c.urlStub)
		longPrior := s.observationsURL(c.firstName, c.userEmail, week-1, c.urlStub)

		c.urlRecord = s.shortenOrLong(ctx, longCurrent)
		c.urlRecordPrior = s.shortenOrLong(ctx, longPrior)
		c.urlLog = strings.TrimPrefix(s.cfg.SiteBaseURL, "https://") + "/" + c.urlStub
	}
	return nil
}

// parseWeek extracts N from a sub-group name ending in "Week N".
func parseWeek(subGroupName string) (int, error) {
	_, after, found := strings.Cut(subGroupName, "Week ")
	if !found {
		return 0, fmt.Errorf("no week number in sub_group_name %q", subGroupName)
	}
	week, err := strconv.Atoi(strings.TrimSpace(after))
	if err != nil {
		return 0, fmt.Errorf("bad week number in sub_group_name %q", subGroupName)
	}
	return week, nil
}

func (s *SchedulerService) observationsURL(firstName, userEmail string, week int, urlStub string) string {
	return fmt.Sprintf("%s/observations?first_name=%s&user_email=%s&experiments=wk%d&url_stub_experimenter_log=%s",
		s.cfg.SiteBaseURL,
		url.QueryEscape(firstName),
		url.QueryEscape(userEmail),
		week,
		url.QueryEscape(urlStub))
}

// shortenOrLong degrades to the long URL when the shortener is unavailable;
// a reminder with a long link beats no reminder.
func (s *SchedulerService) shortenOrLong(ctx context.Context, longURL string) string {
	short, err := s.shortener.Shorten(ctx, longURL)
	if err != nil {
		slog.Warn("url shortener failed, falling back to long url", "error", err.Error())
		return longURL
	}
	return short
}

// scheduleOne fills one candidate's templates and hands it to the send
// capability. Failures land on the candidate's status/statusNote and never
// propagate: one bad action must not sink the batch.
func (s *SchedulerService) scheduleOne(ctx context.Context, c *messageCandidate, experimentPrompts []string) {
	slog.Info("scheduling email", "user_email", c.userEmail, "sub_group_action_id", c.actionID)

	fields := map[string]string{
		"first_name":                         poisonIfEmpty(c.firstName),
		"group_name":                         poisonIfEmpty(c.groupName),
		"sub_group_name":                     poisonIfEmpty(c.subGroupName),
		"url_record_observations":            poisonIfEmpty(c.urlRecord),
		"url_record_observations_prior_week": poisonIfEmpty(c.urlRecordPrior),
		"url_experimenter_log":               poisonIfEmpty(c.urlLog),
	}

	subject, err := fillTemplate(c.emailSubject, fields, experimentPrompts)
	if err != nil {
		s.failOne(c, fmt.Sprintf("error filling in email_subject for sub_group_action_id = %s; Error: %v", c.actionID, err))
		return
	}
	body, err := fillTemplate(c.emailBody, fields, experimentPrompts)
	if err != nil {
		s.failOne(c, fmt.Sprintf("error filling in email_body for sub_group_action_id = %s; Error: %v", c.actionID, err))
		return
	}
	c.emailSubject, c.emailBody = subject, body

	sendAt := c.actionAt
	receipt, err := s.mailer.Send(ctx, OutboundEmail{
		FromEmail:          s.cfg.SenderEmail,
		FromDisplayName:    s.cfg.SenderDisplayName,
		To:                 c.userEmail,
		Subject:            subject,
		HTMLBody:           body,
		SendAt:             &sendAt,
		AddUnsubscribeLink: true,
	})
	if err != nil {
		s.failOne(c, fmt.Sprintf("error scheduling email for sub_group_action_id = %s; Error: %v", c.actionID, err))
		return
	}
	if !receipt.Accepted {
		s.failOne(c, receipt.ErrorMessage)
		return
	}

	c.status = models.ActionMessageScheduled
	c.xMessageID = receipt.XMessageID
	c.batchID = receipt.BatchID
	c.enqueuedAt = receipt.EnqueuedAt
	c.raw = receipt.Raw
}

func (s *SchedulerService) failOne(c *messageCandidate, note string) {
	slog.Error("schedule_messages item failed", "sub_group_action_id", c.actionID, "error", note)
	c.status = models.ActionMessageFailedToSchedule
	c.statusNote = note
}

// persistOutcomes writes statuses back in one batch and records an audit
// row for every scheduled message. Either write failing is logged and
// alerted but does not undo the sends already accepted by the provider.
func (s *SchedulerService) persistOutcomes(ctx context.Context, candidates []messageCandidate) {
	slog.Info("update sub_group_actions table")
	updates := make([]ActionStatusUpdate, 0, len(candidates))
	for _, c := range candidates {
		updates = append(updates, ActionStatusUpdate{
			ActionID:   c.actionID,
			Status:     c.status,
			StatusNote: c.statusNote,
		})
	}
	if err := s.store.UpdateStatuses(ctx, updates); err != nil {
		slog.Error("error updating sub_group_actions table", "error", err.Error())
		s.notifier.Notify("API | schedule_messages", fmt.Errorf("update sub_group_actions: %w", err))
	}

	slog.Info("update sub_group_action_emails table")
	emails := make([]models.SubGroupActionEmail, 0, len(candidates))
	for _, c := range candidates {
		if c.status != models.ActionMessageScheduled {
			continue
		}
		actionID, err := uuid.Parse(c.actionID)
		if err != nil {
			slog.Error("unparseable sub_group_action_id for audit row", "sub_group_action_id", c.actionID)
			continue
		}
		emails = append(emails, models.SubGroupActionEmail{
			SubGroupActionID:  actionID,
			Status:            c.status,
			XMessageID:        c.xMessageID,
			BatchID:           c.batchID,
			Sender:            s.cfg.SenderEmail,
			Recipient:         c.userEmail,
			EmailSubject:      c.emailSubject,
			EmailBody:         c.emailBody,
			EnqueuedDatetime:  c.enqueuedAt,
			ScheduledDatetime: c.actionAt,
			ProviderResponse:  datatypesJSON(c.raw),
		})
	}
	if len(emails) == 0 {
		slog.Info("no rows to add to sub_group_action_emails table")
		return
	}
	if err := s.store.RecordEmails(ctx, emails); err != nil {
		slog.Error("error updating sub_group_action_emails table", "error", err.Error())
		s.notifier.Notify("API | schedule_messages", fmt.Errorf("record sub_group_action_emails: %w", err))
	}
}

// summarize sends the operator a run report and returns the outcome. The
// report failing to send never fails the run.
func (s *SchedulerService) summarize(ctx context.Context, now time.Time, candidates []messageCandidate) *ScheduleOutcome {
	scheduled, failed := 0, 0
	var scheduledLines, failedLines strings.Builder
	for _, c := range candidates {
		line := fmt.Sprintf("%s - %s - %s UTC", c.userEmail, c.emailSubject, c.actionAt.Format("2006-01-02 15:04:05"))
		if c.status == models.ActionMessageScheduled {
			scheduled++
			scheduledLines.WriteString(line + "<br>")
		} else {
			failed++
			failedLines.WriteString(fmt.Sprintf("%s - %s - %s<br>", line, c.status, c.statusNote))
		}
	}

	text := fmt.Sprintf("Scheduled messages: %d <br><br>%s<br>Failed messages: %d<br><br>%s",
		scheduled, scheduledLines.String(), failed, failedLines.String())
	subject := fmt.Sprintf("schedule_messages() - %s - scheduled: %d, failed: %d",
		now.Format("2006-01-02"), scheduled, failed)

	slog.Info("schedule_messages run summary", "scheduled", scheduled, "failed", failed)
	s.sendOperatorMail(ctx, subject, text)

	return &ScheduleOutcome{Scheduled: scheduled, Failed: failed, Message: text}
}

func datatypesJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(raw)
}

func (s *SchedulerService) sendOperatorMail(ctx context.Context, subject, htmlBody string) {
	receipt, err := s.mailer.Send(ctx, OutboundEmail{
		FromEmail:       s.cfg.SenderEmail,
		FromDisplayName: s.cfg.SenderDisplayName,
		To:              s.cfg.OperatorEmail,
		Subject:         subject,
		HTMLBody:        htmlBody,
	})
	if err != nil {
		slog.Error("operator summary email failed", "error", err.Error())
		return
	}
	if !receipt.Accepted {
		slog.Error("operator summary email rejected", "error", receipt.ErrorMessage)
	}
}
