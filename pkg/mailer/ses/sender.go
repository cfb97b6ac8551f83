// Package ses implements mailer.Sender on Amazon SES (API v2).
package ses

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// ErrAttachmentsUnsupported is returned for messages with attachments,
// which the simple SES content type cannot carry.
var ErrAttachmentsUnsupported = errors.New("ses: attachments are not supported")

// API is the subset of the SES v2 client used by Sender.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender implements mailer.Sender using Amazon SES.
type Sender struct {
	api    API
	config Config
}

// New loads AWS configuration and creates an SES sender.
func New(ctx context.Context, cfg Config) (*Sender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	return NewWithAPI(sesv2.NewFromConfig(awsCfg), cfg), nil
}

// NewWithAPI creates a sender on top of an existing SES client.
func NewWithAPI(api API, cfg Config) *Sender {
	return &Sender{api: api, config: cfg}
}

// Send implements mailer.Sender and returns the SES message id.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) (string, error) {
	if len(email.Attachments) > 0 {
		return "", mailer.Fatal(ErrAttachmentsUnsupported)
	}

	from := email.From
	if from == "" {
		from = mailer.Recipient(s.config.SenderName, s.config.SenderEmail)
	}

	body := &types.Body{Html: content(email.HTML)}
	if email.Text != "" {
		body.Text = content(email.Text)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  email.To,
			CcAddresses:  email.CC,
			BccAddresses: email.BCC,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: content(email.Subject),
				Body:    body,
			},
		},
		EmailTags: messageTags(email.Tags),
	}
	if email.ReplyTo != "" {
		input.ReplyToAddresses = []string{email.ReplyTo}
	}
	if s.config.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.config.ConfigurationSet)
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return "", classify(fmt.Errorf("ses: send email: %w", err))
	}
	return aws.ToString(out.MessageId), nil
}

func content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

func messageTags(tags mailer.Tags) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]types.MessageTag, 0, len(names))
	for _, name := range names {
		result = append(result, types.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(tagValue(tags[name])),
		})
	}
	return result
}

// tagValue converts a tag value to a string. Presence-only tags become "true".
func tagValue(v any) string {
	switch val := v.(type) {
	case nil, struct{}:
		return "true"
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// fatalCodes are SES error codes that retrying cannot fix.
var fatalCodes = map[string]bool{
	"MessageRejected":                    true,
	"MailFromDomainNotVerifiedException": true,
	"AccountSuspendedException":          true,
	"SendingPausedException":             true,
	"NotFoundException":                  true,
	"BadRequestException":                true,
	"AccessDeniedException":              true,
	"InvalidClientTokenId":               true,
	"UnrecognizedClientException":        true,
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return mailer.Transient(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if fatalCodes[code] || (apiErr.ErrorFault() == smithy.FaultClient && !isThrottle(code)) {
			return mailer.Fatal(err)
		}
	}
	return mailer.Transient(err)
}

func isThrottle(code string) bool {
	switch code {
	case "TooManyRequestsException", "LimitExceededException", "Throttling", "ThrottlingException":
		return true
	}
	return false
}
