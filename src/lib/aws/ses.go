package aws

import (
	"context"
	"errors"
	"log"

	"cbs/src/lib"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
)

var sesClient *ses.Client

func GetSESClient() *ses.Client {
	if sesClient != nil {
		return sesClient
	}
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Could not load AWS config for SES: %s\n", err.Error())
		return nil
	}
	sesClient = ses.NewFromConfig(cfg)
	return sesClient
}

// SESDeliver sends a queued platform email through SES. It takes the same
// input shape the SMTP transport uses, so the mail worker can pick its
// transport per environment without reshaping the message.
func SESDeliver(ctx context.Context, in *lib.SendMailInput) error {
	c := GetSESClient()
	if c == nil {
		return errors.New("ses client unavailable")
	}
	body := &sestypes.Body{Text: &sestypes.Content{Data: aws.String(in.Body)}}
	if in.Html {
		body = &sestypes.Body{Html: &sestypes.Content{Data: aws.String(in.Body)}}
	}
	input := &ses.SendEmailInput{
		Source:      aws.String(in.From),
		Destination: &sestypes.Destination{ToAddresses: in.To},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(in.Subject)},
			Body:    body,
		},
	}
	if in.ReplyTo != "" {
		input.ReplyToAddresses = []string{in.ReplyTo}
	}
	out, err := c.SendEmail(ctx, input)
	if err != nil {
		log.Printf("Error delivering email to %v via SES: %s\n", in.To, err.Error())
		return err
	}
	log.Printf("Delivered email %s to %v\n", aws.ToString(out.MessageId), in.To)
	return nil
}
