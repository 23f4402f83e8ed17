package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkglogger "github.com/BradenHooton/steeldesk/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// LockoutNotifier tells an account holder that their account was locked
type LockoutNotifier interface {
	NotifyAccountLocked(ctx context.Context, email string, lockUntil time.Time) error
}

// NoopNotifier drops notifications; used when e-mail is disabled
type NoopNotifier struct{}

func (NoopNotifier) NotifyAccountLocked(ctx context.Context, email string, lockUntil time.Time) error {
	return nil
}

// SESSender is the subset of the SES client used for sending
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends lockout notices using AWS SES
type AWSSESEmailService struct {
	sesClient   SESSender
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESEmailService(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESEmailService(client SESSender, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// NotifyAccountLocked sends the lockout notice
func (s *AWSSESEmailService) NotifyAccountLocked(ctx context.Context, email string, lockUntil time.Time) error {
	until := lockUntil.UTC().Format("15:04 MST on Jan 2, 2006")

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Admin Account Locked</h1>
        </div>
        <p>Your steeldesk admin account was locked after several failed sign-in attempts.</p>
        <div class="warning">
            <strong>Sign-in is blocked until %s.</strong>
        </div>
        <p>If these attempts were not made by you, contact the site owner so the account can be reviewed.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, until)

	textBody := fmt.Sprintf(`Admin Account Locked

Your steeldesk admin account was locked after several failed sign-in attempts.
Sign-in is blocked until %s.

If these attempts were not made by you, contact the site owner so the account can be reviewed.

This is an automated message. Please do not reply to this email.
`, until)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your admin account has been locked"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send lockout email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("lockout email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
