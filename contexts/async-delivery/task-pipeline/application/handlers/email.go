package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// EmailHandler sends one transactional email per job.
type EmailHandler struct {
	Sender ports.EmailSender
	From   string
	Logger *slog.Logger
}

func (h EmailHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	logger := application.ResolveLogger(h.Logger)

	var payload EmailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode email payload: %w: %v", domainerrors.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(payload.To) == "" || strings.TrimSpace(payload.Subject) == "" || payload.Text == "" {
		return fmt.Errorf("email payload requires to, subject and text: %w", domainerrors.ErrInvalidPayload)
	}

	err := h.Sender.Send(ctx, ports.EmailMessage{
		From:           h.From,
		To:             strings.TrimSpace(payload.To),
		Subject:        payload.Subject,
		Text:           payload.Text,
		IdempotencyKey: payload.IdempotencyKey,
	})
	if err == nil {
		logger.Info("email sent",
			"event", "email_sent",
			"module", application.ModuleName,
			"layer", "handler",
			"subject", payload.Subject,
		)
		return nil
	}

	var rejection *ports.ProviderRejection
	if errors.As(err, &rejection) && rejection.QuotaExceeded() {
		logger.Warn("email dropped by provider quota",
			"event", "email_dropped_quota",
			"module", application.ModuleName,
			"layer", "handler",
			"provider", rejection.Provider,
			"status_code", rejection.StatusCode,
			"subject", payload.Subject,
		)
		return nil
	}
	return err
}
