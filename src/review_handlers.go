package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"cbs/src/common"
	"cbs/src/db"
	awslib "cbs/src/lib/aws"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func reviewHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/reviews/checkout", func(ctx *gin.Context) {
			var body types.FilmReviewCheckoutRequestBody
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
			if listing.Kind != types.LISTING_FILM_REVIEW {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "listing is not a film review"})
				return
			}
			if listing.CoachID == userId {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "cannot book your own listing"})
				return
			}
			var coach models.User
			if err := d.First(&coach, listing.CoachID).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if coach.StripeAccountId == nil || !coach.PayoutReady {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": common.ErrCoachPayoutNotConfigured.Error()})
				return
			}
			var athlete models.User
			if err := d.First(&athlete, userId).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			result, err := common.CheckoutFilmReview(ctx, &athlete, &coach, &listing, body.FilmURL, body.Notes, body.PaymentMethodID)
			if err != nil {
				if errors.Is(err, common.ErrCoachPayoutNotConfigured) {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				log.Printf("Error during film review checkout for user %d: %s\n", athlete.ID, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
				return
			}
			switch result.Outcome {
			case common.ACCEPT_DECLINED:
				ctx.JSON(http.StatusBadRequest, gin.H{"error": result.DeclineReason, "outcome": "payment_declined"})
			case common.ACCEPT_REQUIRES_ACTION:
				ctx.JSON(http.StatusOK, gin.H{"outcome": "requires_action", "client_secret": result.ClientSecret, "booking_id": result.Booking.ID})
			default:
				ctx.JSON(http.StatusCreated, gin.H{"outcome": "confirmed", "data": result.Booking})
			}
		}).
		POST("/reviews/:id/accept", func(ctx *gin.Context) {
			booking, ok := loadCoachReview(ctx)
			if !ok {
				return
			}
			if err := common.AcceptFilmReview(booking); err != nil {
				if errors.Is(err, common.ErrAlreadyProcessed) {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "review is no longer awaiting acceptance", "review_status": booking.ReviewStatus})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			// Acceptance reveals the film to the coach.
			ctx.JSON(http.StatusOK, gin.H{"data": booking, "film_url": booking.FilmURL})
		}).
		POST("/reviews/:id/decline", func(ctx *gin.Context) {
			booking, ok := loadCoachReview(ctx)
			if !ok {
				return
			}
			var body struct {
				Reason string `json:"reason,omitempty"`
			}
			_ = ctx.ShouldBindJSON(&body)
			if err := common.DeclineFilmReview(ctx, booking, body.Reason); err != nil {
				if errors.Is(err, common.ErrAlreadyProcessed) {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "review is no longer awaiting acceptance", "review_status": booking.ReviewStatus})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		POST("/reviews/:id/complete", func(ctx *gin.Context) {
			booking, ok := loadCoachReview(ctx)
			if !ok {
				return
			}
			var body types.UploadReviewRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			review := types.JSONB{
				"overall_assessment":    body.OverallAssessment,
				"strengths":             body.Strengths,
				"areas_for_improvement": body.AreasForImprovement,
				"recommended_drills":    body.RecommendedDrills,
			}
			if body.KeyTimestamps != "" {
				review["key_timestamps"] = body.KeyTimestamps
			}
			// A server-generated upload key takes precedence over an
			// external supplement link. Only this review's own key is
			// accepted; anything else never gets stored.
			documentRef := body.SupplementalURL
			if body.SupplementalKey != "" {
				if body.SupplementalKey != reviewSupplementKey(booking.ID) {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "supplemental_key does not belong to this review"})
					return
				}
				documentRef = body.SupplementalKey
			}
			if err := common.CompleteFilmReview(booking, review, documentRef); err != nil {
				if errors.Is(err, common.ErrAlreadyProcessed) {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "review is not in progress", "review_status": booking.ReviewStatus})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		PUT("/reviews/:id/document", func(ctx *gin.Context) {
			// Replaced by the structured completion payload.
			ctx.JSON(http.StatusGone, gin.H{"error": "this endpoint has been removed; submit the review via POST /reviews/:id/complete"})
		}).
		GET("/reviews/:id/film", func(ctx *gin.Context) {
			booking, ok := loadCoachReview(ctx)
			if !ok {
				return
			}
			if booking.ReviewStatus == types.REVIEW_PENDING_ACCEPTANCE {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "accept the review to view the film"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"film_url": booking.FilmURL, "notes": booking.Notes})
		}).
		POST("/reviews/:id/upload-url", func(ctx *gin.Context) {
			booking, ok := loadCoachReview(ctx)
			if !ok {
				return
			}
			if booking.ReviewStatus != types.REVIEW_ACCEPTED {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "review is not in progress"})
				return
			}
			var body struct {
				ContentType string `json:"content_type" binding:"required"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			key := reviewSupplementKey(booking.ID)
			url, err := awslib.S3PresignReviewDocumentUpload(key, body.ContentType)
			if err != nil {
				log.Printf("Error presigning upload for booking %s: %s\n", booking.ID, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
		}).
		GET("/reviews/:id/document", func(ctx *gin.Context) {
			id, ok := parseRequestID(ctx)
			if !ok {
				return
			}
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var booking models.Booking
			if err := d.First(&booking, "id = ?", id).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
				return
			}
			if booking.CoachID != userId && booking.AthleteID != userId {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
				return
			}
			if booking.ReviewStatus != types.REVIEW_COMPLETED || booking.ReviewDocumentURL == nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "no review document available"})
				return
			}
			// External supplement links are returned as-is; own-bucket
			// keys get a time-limited download URL.
			ref := *booking.ReviewDocumentURL
			if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
				ctx.JSON(http.StatusOK, gin.H{"document_url": ref})
				return
			}
			url, err := awslib.S3PresignObjectDownload(ref)
			if err != nil {
				log.Printf("Error presigning download for booking %s: %s\n", booking.ID, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"document_url": url})
		})
	return g
}

// reviewSupplementKey is the single storage key a coach may upload a
// supplement document to for a given review.
func reviewSupplementKey(id uuid.UUID) string {
	return fmt.Sprintf("reviews/%s/supplement", id)
}

// loadCoachReview binds the id param, loads the film-review booking, and
// enforces that the caller is its coach. 404 for missing or foreign rows so
// existence is not leaked, 403 when the booking belongs to a different coach.
func loadCoachReview(ctx *gin.Context) (*models.Booking, bool) {
	id, ok := parseRequestID(ctx)
	if !ok {
		return nil, false
	}
	userId := ctx.GetUint("id")
	d := db.GetDb()
	var booking models.Booking
	if err := d.
		Where(&models.Booking{Type: types.BOOKING_FILM_REVIEW}).
		First(&booking, "id = ?", id).
		Error; err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return nil, false
	}
	if booking.CoachID != userId {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "review belongs to another coach"})
		return nil, false
	}
	return &booking, true
}
