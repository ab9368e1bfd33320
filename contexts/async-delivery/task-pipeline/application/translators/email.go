package translators

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"taskpipe/contexts/async-delivery/task-pipeline/application/handlers"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
)

const (
	EventVerificationEmail = "verification_email"
	EventRecoveryEmail     = "recovery_email"
)

var EmailEventNames = []string{EventVerificationEmail, EventRecoveryEmail}

type emailMetadata struct {
	Email string `json:"email"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

type emailTemplate struct {
	subject string
	path    string
	intro   string
	outro   string
}

var emailTemplates = map[string]emailTemplate{
	EventVerificationEmail: {
		subject: "Verify your email address",
		path:    "/verify-email",
		intro:   "Confirm your email address by opening the link below:",
		outro:   "If you did not create an account, you can ignore this message.",
	},
	EventRecoveryEmail: {
		subject: "Reset your password",
		path:    "/reset-password",
		intro:   "We received a request to reset your password. Open the link below to choose a new one:",
		outro:   "If you did not request a password reset, you can ignore this message.",
	},
}

// EmailTranslator renders verification and recovery events into send_email jobs.
type EmailTranslator struct {
	AppBaseURL  string
	MaxAttempts int
}

func (t EmailTranslator) Translate(event entities.OutboxEvent) (entities.JobSpec, bool, error) {
	tmpl, ok := emailTemplates[event.EventName]
	if !ok {
		return entities.JobSpec{}, false, nil
	}

	var meta emailMetadata
	if err := event.DecodeMetadata(&meta); err != nil {
		return entities.JobSpec{}, false, fmt.Errorf("decode %s metadata: %w", event.EventName, err)
	}
	if strings.TrimSpace(meta.Email) == "" || strings.TrimSpace(meta.Token) == "" {
		return entities.JobSpec{}, false, fmt.Errorf("%s requires email and token: %w", event.EventName, domainerrors.ErrInvalidEvent)
	}

	payload, err := json.Marshal(handlers.EmailPayload{
		To:             strings.TrimSpace(meta.Email),
		Subject:        tmpl.subject,
		Text:           t.renderBody(tmpl, meta),
		IdempotencyKey: entities.OutboxIdempotencyKey(event.ID),
	})
	if err != nil {
		return entities.JobSpec{}, false, err
	}
	return sourceSpec(event, handlers.JobTypeSendEmail, payload, t.MaxAttempts), true, nil
}

func (t EmailTranslator) renderBody(tmpl emailTemplate, meta emailMetadata) string {
	greeting := "Hi,"
	if name := strings.TrimSpace(meta.Name); name != "" {
		greeting = "Hi " + name + ","
	}
	link := strings.TrimRight(t.AppBaseURL, "/") + tmpl.path + "?token=" + url.QueryEscape(meta.Token)

	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\n")
	b.WriteString(tmpl.intro)
	b.WriteString("\n")
	b.WriteString(link)
	b.WriteString("\n\n")
	b.WriteString(tmpl.outro)
	b.WriteString("\n")
	return b.String()
}
