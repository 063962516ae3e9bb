package emails

import (
	"context"
	"errors"
	"fmt"

	"go-reports/internal/config"
)

type Service struct {
	repo *Repository
	smtp SMTPConfig
	from string
}

func NewService(repo *Repository, cfg *config.Config) *Service {
	return &Service{
		repo: repo,
		smtp: SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
		},
		from: cfg.SMTPFrom,
	}
}

func (s *Service) Send(ctx context.Context, email *Email) error {
	if len(email.To) == 0 {
		return errors.New("recipient required")
	}
	if email.From == "" {
		email.From = s.from
	}

	email.Status = EmailQueued
	if err := s.repo.Create(ctx, email); err != nil {
		return err
	}

	go s.process(email)
	return nil
}

// SendReportReady mails the download link for a finished report run.
func (s *Service) SendReportReady(ctx context.Context, to []string, reportName, reportID, downloadURL string) error {
	return s.Send(ctx, &Email{
		To:       to,
		Subject:  "Report is ready",
		ReportID: reportID,
		TextBody: downloadURL,
		HtmlBody: fmt.Sprintf(
			"<p>Your report <strong>%s</strong> is ready.</p><p><a href=%q>Download</a></p>",
			reportName, downloadURL,
		),
	})
}

func (s *Service) process(email *Email) {
	if s.smtp.Host == "" {
		// No SMTP configured; leave the mail queued so it is visible in the collection
		return
	}

	err := SendSMTP(s.smtp, email)
	if err != nil {
		_ = s.repo.UpdateStatus(
			context.Background(),
			email.ID,
			EmailFailed,
			err.Error(),
		)
		return
	}

	_ = s.repo.UpdateStatus(
		context.Background(),
		email.ID,
		EmailSent,
		"",
	)
}
