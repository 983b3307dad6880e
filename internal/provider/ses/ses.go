// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/contact-relay/internal/email"
)

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender is used when a message carries no From address.
	Sender string
	// ConnectTimeout bounds dialing and the TLS handshake; Timeout bounds
	// the whole API call. Zero leaves the SDK defaults in place.
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// SESProvider sends emails via the AWS SES v2 API.
type SESProvider struct {
	sender string
	client SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration. SDK retries
// are disabled: a failed call is reported at once so the fallback can run.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		awsconfig.WithHTTPClient(newHTTPClient(cfg.ConnectTimeout, cfg.Timeout)),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESProvider{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
	}, nil
}

// newHTTPClient returns an SDK buildable client so LoadDefaultConfig can
// still install AWS_CA_BUNDLE roots on its transport.
func newHTTPClient(connectTimeout, timeout time.Duration) *awshttp.BuildableClient {
	client := awshttp.NewBuildableClient()
	if timeout > 0 {
		client = client.WithTimeout(timeout)
	}
	if connectTimeout > 0 {
		client = client.WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = connectTimeout
		}).WithTransportOptions(func(tr *http.Transport) {
			tr.TLSHandshakeTimeout = connectTimeout
		})
	}
	return client
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *SESProvider {
	return &SESProvider{
		sender: sender,
		client: client,
	}
}

// Send delivers an email message via AWS SES v2 in a single API call.
// Messages with custom headers go out as raw MIME so the headers survive;
// everything else uses the simple content format.
func (s *SESProvider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	from := msg.From
	if from == "" {
		from = s.sender
	}

	var input *sesv2.SendEmailInput
	if len(msg.Headers) > 0 {
		withFrom := *msg
		withFrom.From = from
		raw, err := email.BuildMIME(&withFrom, "", time.Now())
		if err != nil {
			return email.Receipt{}, fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(from),
			Destination:      destination(msg),
			Content: &types.EmailContent{
				Raw: &types.RawMessage{Data: raw},
			},
		}
	} else {
		input = buildSimpleInput(from, msg)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("SES API request failed: %w", err)
	}

	id := aws.ToString(out.MessageId)
	slog.DebugContext(ctx, "SES accepted message", "message_id", id)

	return email.Receipt{MessageID: id}, nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

func destination(msg *email.Message) *types.Destination {
	return &types.Destination{
		ToAddresses: []string{msg.To},
		CcAddresses: msg.Cc,
	}
}

// buildSimpleInput creates a SES SendEmailInput using simple content.
func buildSimpleInput(sender string, msg *email.Message) *sesv2.SendEmailInput {
	body := &types.Body{}

	if msg.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	return input
}
