package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"cbs/src/common"
	"cbs/src/config"
	"cbs/src/db"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func requestHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/requests", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			role := ctx.GetString("role")
			d := db.GetDb()
			var data []models.BookingRequest
			q := d.Model(&models.BookingRequest{}).Preload("Listing").Order("created_at desc")
			if role == string(types.ROLE_COACH) {
				q = q.Where(&models.BookingRequest{CoachID: userId})
			} else {
				q = q.Where(&models.BookingRequest{AthleteID: userId})
			}
			if status := ctx.Query("status"); status != "" {
				q = q.Where("status = ?", status)
			}
			if err := q.Find(&data).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
		}).
		GET("/requests/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var request models.BookingRequest
			if err := d.
				Preload("Listing").
				Preload("Coach").
				First(&request, "id = ?", params.ID).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
				return
			}
			if request.CoachID != userId && request.AthleteID != userId {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": request, "expires_at": common.RequestExpiresAt(&request)})
		}).
		POST("/requests", func(ctx *gin.Context) {
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var listing models.Listing
			if err := d.First(&listing, "id = ?", body.ListingID).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
				return
			}
			if listing.Kind != types.LISTING_LIVE_LESSON {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "listing does not take booking requests"})
				return
			}
			if listing.CoachID == userId {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "cannot book your own listing"})
				return
			}
			startsAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.StartsAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			endsAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.EndsAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if !endsAt.After(startsAt) {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be after starts_at"})
				return
			}

			request := models.BookingRequest{
				ListingID:       listing.ID,
				CoachID:         listing.CoachID,
				AthleteID:       userId,
				StartsAt:        &startsAt,
				EndsAt:          &endsAt,
				Timezone:        body.Timezone,
				Status:          types.REQUEST_PENDING,
				PaymentMethodID: body.PaymentMethodID,
			}
			err = d.Transaction(func(tx *gorm.DB) error {
				conversation := models.Conversation{CoachID: listing.CoachID, AthleteID: userId}
				if err := tx.Create(&conversation).Error; err != nil {
					return err
				}
				request.ConversationID = &conversation.ID
				return tx.Create(&request).Error
			})
			if err != nil {
				log.Printf("Error creating booking request: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			common.PostSystemMessage(*request.ConversationID, "Booking request sent. The coach has 72 hours to respond.", types.JSONB{"event": "request_created"})
			ctx.JSON(http.StatusCreated, gin.H{"data": request, "expires_at": common.RequestExpiresAt(&request)})
		}).
		POST("/requests/:id/accept", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var request models.BookingRequest
			if err := d.First(&request, "id = ?", params.ID).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
				return
			}
			if request.CoachID != userId {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "request belongs to another coach"})
				return
			}
			var coach models.User
			if err := d.First(&coach, userId).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := common.AcceptBookingRequest(ctx, &request, &coach)
			if err != nil {
				switch {
				case errors.Is(err, common.ErrAlreadyProcessed):
					ctx.JSON(http.StatusNotFound, gin.H{"error": "request is no longer pending", "status": request.Status})
				case errors.Is(err, common.ErrMissingPaymentMethod), errors.Is(err, common.ErrCoachPayoutNotConfigured):
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				default:
					log.Printf("Error accepting request %s: %s\n", request.ID, err.Error())
					ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
				}
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"outcome": result.Outcome, "data": result})
		}).
		POST("/requests/:id/decline", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body struct {
				Reason string `json:"reason,omitempty"`
			}
			_ = ctx.ShouldBindJSON(&body)
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var request models.BookingRequest
			if err := d.First(&request, "id = ?", params.ID).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
				return
			}
			if request.CoachID != userId {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "request belongs to another coach"})
				return
			}
			if err := common.DeclineBookingRequest(&request, body.Reason); err != nil {
				if errors.Is(err, common.ErrAlreadyProcessed) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": "request is no longer pending", "status": request.Status})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": request})
		})
	return g
}

func parseRequestID(ctx *gin.Context) (uuid.UUID, bool) {
	var params types.SimpleRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(params.ID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, false
	}
	return id, true
}
