package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/tryexperimenter/experimenter-api/internal/services"
)

const sendGridHost = "https://api.sendgrid.com"

// unsubscribeFooter is appended to every end-user email body.
const unsubscribeFooter = `<br><br><a href="https://www.tryexperimenter.com/unsubscribe" style="text-decoration: underline; color: #959595; cursor: pointer">Unsubscribe</a>`

// SendGridMailer sends and schedules email through SendGrid. Every message
// is tied to a fresh batch id so a scheduled send can be canceled later.
type SendGridMailer struct {
	apiKey string
	client *sendgrid.Client
}

func NewSendGridMailer(apiKey string) *SendGridMailer {
	return &SendGridMailer{
		apiKey: apiKey,
		client: sendgrid.NewSendClient(apiKey),
	}
}

// Send hands one message to SendGrid. With SendAt set the message is
// scheduled rather than delivered immediately; SendGrid rejects send times
// more than 72 hours out. The sender is BCC'd on every end-user message so
// there is a record of what actually went out.
func (m *SendGridMailer) Send(ctx context.Context, msg services.OutboundEmail) (*services.SendReceipt, error) {
	batchID, err := m.newBatchID(ctx)
	if err != nil {
		return nil, fmt.Errorf("create batch id: %w", err)
	}

	body := msg.HTMLBody
	if msg.AddUnsubscribeLink {
		body += unsubscribeFooter
	}

	v3 := mail.NewV3Mail()
	v3.SetFrom(mail.NewEmail(msg.FromDisplayName, msg.FromEmail))
	v3.Subject = msg.Subject
	v3.AddContent(mail.NewContent("text/html", body))
	v3.SetBatchID(batchID)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	if msg.To != msg.FromEmail {
		p.AddBCCs(mail.NewEmail("", msg.FromEmail))
	}
	v3.AddPersonalizations(p)

	if msg.SendAt != nil {
		v3.SetSendAt(int(msg.SendAt.Unix()))
	}

	resp, err := m.client.SendWithContext(ctx, v3)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}

	receipt := &services.SendReceipt{
		Accepted:   resp.StatusCode == http.StatusAccepted,
		BatchID:    batchID,
		EnqueuedAt: time.Now().UTC(),
		Raw:        rawResponse(resp.StatusCode, resp.Body, resp.Headers),
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		receipt.XMessageID = ids[0]
	}
	if !receipt.Accepted {
		receipt.ErrorMessage = fmt.Sprintf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return receipt, nil
}

// CancelBatch asks SendGrid to cancel every scheduled send in a batch.
func (m *SendGridMailer) CancelBatch(ctx context.Context, batchID string) error {
	req := sendgrid.GetRequest(m.apiKey, "/v3/user/scheduled_sends", sendGridHost)
	req.Method = http.MethodPost
	payload, err := json.Marshal(map[string]string{"batch_id": batchID, "status": "cancel"})
	if err != nil {
		return err
	}
	req.Body = payload

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid cancel batch: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sendgrid cancel batch returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (m *SendGridMailer) newBatchID(ctx context.Context) (string, error) {
	req := sendgrid.GetRequest(m.apiKey, "/v3/mail/batch", sendGridHost)
	req.Method = http.MethodPost

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("sendgrid batch endpoint returned status %d: %s", resp.StatusCode, resp.Body)
	}

	var parsed struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &parsed); err != nil {
		return "", fmt.Errorf("parse batch response: %w", err)
	}
	if parsed.BatchID == "" {
		return "", fmt.Errorf("no batch_id in response: %s", resp.Body)
	}
	return parsed.BatchID, nil
}

func rawResponse(statusCode int, body string, headers map[string][]string) json.RawMessage {
	raw, err := json.Marshal(map[string]any{
		"status_code": statusCode,
		"body":        body,
		"headers":     headers,
	})
	if err != nil {
		return nil
	}
	return raw
}
