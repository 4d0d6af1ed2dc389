package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cbs/src/db"
	"cbs/src/lib"
	"cbs/src/lib/mailer"
	"cbs/src/models"
	"cbs/src/types"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	calendar "google.golang.org/api/calendar/v3"
)

// PostSystemMessage appends a system-authored message to a conversation.
// Failures are logged and swallowed: conversation history is best-effort
// relative to the state machines that call this.
func PostSystemMessage(conversationId uuid.UUID, body string, metadata types.JSONB) {
	d := db.GetDb()
	message := models.Message{
		ConversationID: conversationId,
		Kind:           types.MESSAGE_SYSTEM,
		Body:           body,
		Metadata:       metadata,
	}
	if err := d.Create(&message).Error; err != nil {
		log.Printf("Error posting system message to conversation %s: %s\n", conversationId, err.Error())
	}
}

// SendEmailAsync queues an email for the mail worker. Delivery is
// best-effort and never blocks the caller.
func SendEmailAsync(to, subject, body string) {
	go func() {
		err := mailer.NewMailerMessage(&lib.SendMailInput{
			From:     os.Getenv("EMAIL_SENDER"),
			FromName: "Coach Booking",
			To:       []string{to},
			Subject:  subject,
			Body:     body,
		})
		if err != nil {
			log.Printf("Error queueing email to %s: %s\n", to, err.Error())
		}
	}()
}

// NotifyPushAsync sends an FCM push to a user's registered device, if any.
// Registration tokens live in redis keyed by user id.
func NotifyPushAsync(userId uint, title, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		red := lib.GetRedisClient()
		if red == nil {
			return
		}
		token, err := red.Get(ctx, fmt.Sprintf("fcm:token:%d", userId)).Result()
		if err != nil || token == "" {
			return
		}
		client, err := lib.GetFirebaseMessaging()
		if err != nil || client == nil {
			return
		}
		_, err = client.Send(ctx, &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
		})
		if err != nil {
			log.Printf("Error sending push to user %d: %s\n", userId, err.Error())
		}
	}()
}

// SyncCalendarAsync mirrors a confirmed booking onto the shared coaching
// calendar. No-op when the calendar integration is not configured.
func SyncCalendarAsync(booking *models.Booking, listingTitle string) {
	if booking.StartsAt == nil || booking.EndsAt == nil {
		return
	}
	startsAt := *booking.StartsAt
	endsAt := *booking.EndsAt
	go func() {
		event := &calendar.Event{
			Summary:     listingTitle,
			Description: fmt.Sprintf("Booking %s", booking.ID),
			Start:       &calendar.EventDateTime{DateTime: startsAt.Format(time.RFC3339)},
			End:         &calendar.EventDateTime{DateTime: endsAt.Format(time.RFC3339)},
		}
		if booking.MeetingJoinURL != nil {
			event.Location = *booking.MeetingJoinURL
		}
		calId := os.Getenv("COACHING_CALENDAR_ID")
		if calId == "" {
			return
		}
		if err := lib.GAPIAddEvent(calId, event, nil); err != nil {
			log.Printf("Error syncing booking %s to calendar: %s\n", booking.ID, err.Error())
		}
	}()
}
