package main

import (
	"log"
	"net/http"

	"cbs/src/common"
	"cbs/src/db"
	"cbs/src/lib"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/gin-gonic/gin"
)

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/bookings", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			role := ctx.GetString("role")
			d := db.GetDb()
			var data []models.Booking
			q := d.Model(&models.Booking{}).Preload("Listing").Order("created_at desc")
			if role == string(types.ROLE_COACH) {
				q = q.Where(&models.Booking{CoachID: userId})
			} else {
				q = q.Where(&models.Booking{AthleteID: userId})
			}
			if kind := ctx.Query("type"); kind != "" {
				q = q.Where("type = ?", kind)
			}
			if err := q.Find(&data).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			id, ok := parseRequestID(ctx)
			if !ok {
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var booking models.Booking
			if err := d.
				Preload("Listing").
				Preload("Coach").
				First(&booking, "id = ?", id).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
				return
			}
			if booking.CoachID != userId && booking.AthleteID != userId {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
				return
			}
			payload := gin.H{"data": booking}
			// Host-only meeting link for the coach.
			if booking.CoachID == userId && booking.MeetingStartURL != nil {
				payload["meeting_start_url"] = *booking.MeetingStartURL
			}
			ctx.JSON(http.StatusOK, payload)
		}).
		POST("/bookings/:id/cancel", func(ctx *gin.Context) {
			id, ok := parseRequestID(ctx)
			if !ok {
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var booking models.Booking
			if err := d.First(&booking, "id = ?", id).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
				return
			}
			if booking.CoachID != userId {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "only the coach can cancel a booking"})
				return
			}
			if booking.Type != types.BOOKING_LIVE_LESSON {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "film reviews are cancelled by declining them"})
				return
			}
			res := d.
				Model(&models.Booking{}).
				Where("id = ? AND status = ?", booking.ID, types.BOOKING_PAID).
				Update("status", types.BOOKING_CANCELED)
			if res.Error != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
				return
			}
			if res.RowsAffected == 0 {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "booking is not cancellable", "status": booking.Status})
				return
			}
			booking.Status = types.BOOKING_CANCELED
			if booking.PaymentIntentId != nil {
				if _, err := lib.RefundPayment(ctx, *booking.PaymentIntentId); err != nil {
					log.Printf("[RECONCILE] cancelled booking %s but refund of %s failed: %s\n", booking.ID, *booking.PaymentIntentId, err.Error())
				}
			}
			if booking.ConversationID != nil {
				common.PostSystemMessage(*booking.ConversationID, "The coach cancelled this lesson. A full refund has been issued.", types.JSONB{"event": "booking_cancelled"})
			}
			common.SendEmailAsync(booking.CustomerEmail, "Lesson cancelled", "Your lesson was cancelled by the coach and a full refund has been issued.")
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		GET("/conversations/:id/messages", func(ctx *gin.Context) {
			id, ok := parseRequestID(ctx)
			if !ok {
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var conversation models.Conversation
			if err := d.First(&conversation, "id = ?", id).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			if conversation.CoachID != userId && conversation.AthleteID != userId {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			var messages []models.Message
			if err := d.
				Where(&models.Message{ConversationID: conversation.ID}).
				Order("created_at asc").
				Find(&messages).
				Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": messages, "count": len(messages)})
		}).
		POST("/conversations/:id/messages", func(ctx *gin.Context) {
			id, ok := parseRequestID(ctx)
			if !ok {
				return
			}
			var body struct {
				Body string `json:"body" binding:"required"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var conversation models.Conversation
			if err := d.First(&conversation, "id = ?", id).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			if conversation.CoachID != userId && conversation.AthleteID != userId {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			message := models.Message{
				ConversationID: conversation.ID,
				SenderID:       &userId,
				Kind:           types.MESSAGE_USER,
				Body:           body.Body,
			}
			if err := d.Create(&message).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			recipient := conversation.CoachID
			if userId == conversation.CoachID {
				recipient = conversation.AthleteID
			}
			common.NotifyPushAsync(recipient, "New message", body.Body)
			ctx.JSON(http.StatusCreated, gin.H{"data": message})
		})
	return g
}
