package boot

import (
	"context"
	"log"
	"os"
	"time"

	"cbs/src/common"
	"cbs/src/db"
	"cbs/src/lib"
	awslib "cbs/src/lib/aws"
	"cbs/src/models"
	"cbs/src/utils"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	d := db.GetDb()

	err := d.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.BookingRequest{},
		&models.Booking{},
		&models.Conversation{},
		&models.Message{},
		&models.PayoutEvent{},
		&models.Setting{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return d
}

// InitScheduler starts the background sweep that expires pending booking
// requests past their response window.
func InitScheduler() {
	jobId, err := lib.CreateCronJob(func() {
		common.SweepExpiredRequests()
	}, time.Hour)
	if err != nil {
		log.Printf("Error scheduling request sweep: %s\n", err.Error())
		return
	}
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	sched.Start()
	log.Printf("Request sweep scheduled as job %s\n", *jobId)
}

// InitMailWorker drains the email queue: the kafka topic locally, SQS in
// deployed environments. Delivery goes through SMTP locally and SES
// otherwise.
func InitMailWorker() {
	queue := utils.WithSuffix(os.Getenv("EMAIL_QUEUE"))
	if os.Getenv("API_ENV") == "local" {
		go lib.KafkaConsumeTopic("emails-worker", queue, deliverEmail)
		return
	}
	consumer := awslib.NewSQSConsumer(queue, deliverEmail)
	consumer.Listen()
}

func deliverEmail(payload string) {
	to := gjson.Get(payload, "to")
	subject := gjson.Get(payload, "subject").String()
	body := gjson.Get(payload, "body").String()
	var recipients []string
	for _, r := range to.Array() {
		recipients = append(recipients, r.String())
	}
	if len(recipients) == 0 {
		log.Printf("Dropping email with no recipients: %s\n", subject)
		return
	}
	from := gjson.Get(payload, "from").String()
	if from == "" {
		from = os.Getenv("EMAIL_SENDER")
	}

	in := &lib.SendMailInput{
		From:     from,
		FromName: gjson.Get(payload, "from-name").String(),
		To:       recipients,
		ReplyTo:  gjson.Get(payload, "reply-to").String(),
		Subject:  subject,
		Body:     body,
		Html:     gjson.Get(payload, "html").Bool(),
	}
	var err error
	if utils.IsProd() {
		err = awslib.SESDeliver(context.TODO(), in)
	} else {
		err = lib.SendMail(in)
	}
	if err != nil {
		log.Printf("Error delivering email to %v: %s\n", recipients, err.Error())
	}
}
