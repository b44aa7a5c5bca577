package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/osteele/liquid"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// sesAPI is the part of the SES v2 client the notifier needs.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type emailTemplate struct {
	subject *liquid.Template
	body    *liquid.Template
}

// Templates maps each kind to liquid subject and HTML body sources.
type Templates map[models.NotificationKind][2]string

// DefaultTemplates are used when NewSESNotifier is given none.
var DefaultTemplates = Templates{
	models.NotifyCampaignCompleted: {
		`Your campaign "{{ campaign_name }}" has ended`,
		`<p>Your campaign <strong>{{ campaign_name }}</strong> has completed` +
			`{% if reason == "budget_exhausted" %} after spending its full budget{% elsif reason == "end_date" %} on its scheduled end date{% endif %}.</p>` +
			`<p>Total spent: {{ value }} {{ currency }}</p>`,
	},
	models.NotifyPurchaseConversion: {
		`New purchase from "{{ campaign_name }}"`,
		`<p>A purchase worth <strong>{{ value }} {{ currency }}</strong> was attributed to your campaign {{ campaign_name }}.</p>`,
	},
}

// SESNotifier emails notifications through Amazon SES.
type SESNotifier struct {
	client    sesAPI
	sender    string
	templates map[models.NotificationKind]emailTemplate
	logger    log.Logger
}

// NewSESClient creates an SES v2 client, pointing it at endpoint when set.
func NewSESClient(cfg aws.Config, endpoint string) *sesv2.Client {
	return sesv2.NewFromConfig(cfg, func(o *sesv2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewSESNotifier compiles the templates up front so a bad template fails at startup.
func NewSESNotifier(client sesAPI, sender string, templates Templates, logger log.Logger) (*SESNotifier, error) {
	if templates == nil {
		templates = DefaultTemplates
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	engine := liquid.NewEngine()
	compiled := make(map[models.NotificationKind]emailTemplate, len(templates))
	for kind, src := range templates {
		subject, err := engine.ParseString(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject template: %w", kind, err)
		}
		body, err := engine.ParseString(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body template: %w", kind, err)
		}
		compiled[kind] = emailTemplate{subject: subject, body: body}
	}

	return &SESNotifier{
		client:    client,
		sender:    sender,
		templates: compiled,
		logger:    log.With(logger, "component", "ses_notifier"),
	}, nil
}

func (n *SESNotifier) Notify(ctx context.Context, note models.Notification) error {
	if note.Recipient == "" {
		return fmt.Errorf("%w: campaign %s", ErrNoRecipient, note.CampaignID)
	}
	tpl, ok := n.templates[note.Kind]
	if !ok {
		return fmt.Errorf("no template for notification kind %q", note.Kind)
	}

	bindings := map[string]any{
		"kind":          string(note.Kind),
		"campaign_id":   note.CampaignID,
		"campaign_name": note.CampaignName,
		"client_id":     note.ClientID,
		"reason":        note.Reason,
		"value":         note.Value.StringFixed(2),
		"currency":      note.Currency,
		"occurred_at":   note.OccurredAt,
	}
	subject, renderErr := tpl.subject.RenderString(bindings)
	if renderErr != nil {
		return fmt.Errorf("render subject: %w", renderErr)
	}
	body, renderErr := tpl.body.RenderString(bindings)
	if renderErr != nil {
		return fmt.Errorf("render body: %w", renderErr)
	}

	out, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.sender),
		Destination:      &types.Destination{ToAddresses: []string{note.Recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(note.CampaignID)},
			{Name: aws.String("kind"), Value: aws.String(string(note.Kind))},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	level.Debug(n.logger).Log("msg", "notification sent", "kind", note.Kind, "campaign_id", note.CampaignID, "message_id", aws.ToString(out.MessageId))
	return nil
}
