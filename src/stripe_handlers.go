package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"

	"cbs/src/common"
	"cbs/src/db"
	"cbs/src/lib"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		switch event.Type {
		case "payment_intent.succeeded":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				log.Printf("[Stripe] Error parsing PaymentIntent: %s\n", err.Error())
				break
			}
			// Reconfirm against the gateway rather than trusting the
			// delivered snapshot.
			fresh, err := lib.RetrievePaymentIntent(ctx, pi.ID)
			if err != nil {
				log.Printf("[Stripe] Error retrieving intent %s: %s\n", pi.ID, err.Error())
				break
			}
			if fresh.Status != stripe.PaymentIntentStatusSucceeded {
				log.Printf("[Stripe] Intent %s is %s, not finalizing\n", pi.ID, fresh.Status)
				break
			}
			if requestIdRaw, ok := pi.Metadata["request_id"]; ok {
				requestId, err := uuid.Parse(requestIdRaw)
				if err != nil {
					log.Printf("[Stripe] Bad request_id on intent %s: %s\n", pi.ID, err.Error())
					break
				}
				if err := common.CompleteDeferredAcceptance(ctx, requestId, fresh); err != nil {
					switch {
					case errors.Is(err, common.ErrAlreadyProcessed):
					case errors.Is(err, gorm.ErrRecordNotFound):
						log.Printf("[RECONCILE] succeeded intent %s references unknown request %s\n", pi.ID, requestId)
					default:
						log.Printf("Error completing acceptance for request %s: %s\n", requestId, err.Error())
					}
				}
				break
			}
			if bookingIdRaw, ok := pi.Metadata["booking_id"]; ok {
				bookingId, err := uuid.Parse(bookingIdRaw)
				if err != nil {
					log.Printf("[Stripe] Bad booking_id on intent %s: %s\n", pi.ID, err.Error())
					break
				}
				if err := common.FinalizeDeferredCheckout(ctx, bookingId, fresh); err != nil {
					switch {
					case errors.Is(err, common.ErrAlreadyProcessed):
					case errors.Is(err, gorm.ErrRecordNotFound):
						log.Printf("[RECONCILE] succeeded intent %s references unknown film review booking %s\n", pi.ID, bookingId)
					default:
						log.Printf("Error finalizing film review checkout %s: %s\n", bookingId, err.Error())
					}
				}
				break
			}
			// Money moved on an intent nothing here can match up. Surface
			// it for manual reconciliation instead of dropping it.
			log.Printf("[RECONCILE] succeeded intent %s carries no request or booking reference\n", pi.ID)
		case "payment_intent.payment_failed":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				log.Printf("[Stripe] Error parsing PaymentIntent: %s\n", err.Error())
				break
			}
			d := db.GetDb()
			if requestIdRaw, ok := pi.Metadata["request_id"]; ok {
				var request models.BookingRequest
				if err := d.First(&request, "id = ?", requestIdRaw).Error; err != nil {
					break
				}
				if request.ConversationID != nil {
					common.PostSystemMessage(*request.ConversationID, "Payment failed. The request is still pending; try a different card.", types.JSONB{"event": "payment_failed"})
				}
				break
			}
			if bookingIdRaw, ok := pi.Metadata["booking_id"]; ok {
				var booking models.Booking
				if err := d.First(&booking, "id = ?", bookingIdRaw).Error; err != nil {
					break
				}
				// Authentication failed, so the held checkout never becomes
				// a live review obligation.
				d.Model(&models.Booking{}).
					Where("id = ? AND status = ?", booking.ID, types.BOOKING_PENDING_PAYMENT).
					Update("status", types.BOOKING_CANCELED)
				if booking.ConversationID != nil {
					common.PostSystemMessage(*booking.ConversationID, "Payment failed. The film review was not purchased; start a new checkout to try again.", types.JSONB{"event": "payment_failed"})
				}
			}
		case "customer.created":
			var cus stripe.Customer
			if err := json.Unmarshal(event.Data.Raw, &cus); err != nil {
				log.Printf("[Stripe] Error parsing Customer: %s\n", err.Error())
				break
			}
			d := db.GetDb()
			if err := d.
				Model(&models.User{}).
				Where("email = ? AND stripe_customer_id IS NULL", cus.Email).
				Update("stripe_customer_id", cus.ID).
				Error; err != nil {
				log.Printf("Error saving customer id %s: %s\n", cus.ID, err.Error())
			}
		case "account.updated":
			var acc stripe.Account
			if err := json.Unmarshal(event.Data.Raw, &acc); err != nil {
				log.Printf("[Stripe] Error parsing Account: %s\n", err.Error())
				break
			}
			ready := acc.ChargesEnabled && acc.PayoutsEnabled
			d := db.GetDb()
			if err := d.
				Model(&models.User{}).
				Where("stripe_account_id = ?", acc.ID).
				Update("payout_ready", ready).
				Error; err != nil {
				log.Printf("Error updating payout readiness for account %s: %s\n", acc.ID, err.Error())
			}
		default:
			log.Printf("[Stripe] Unhandled event type %s\n", event.Type)
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}

func stripeConnectHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/stripe/connect", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var coach models.User
			if err := d.First(&coach, userId).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if coach.StripeAccountId != nil && coach.PayoutReady {
				ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
				return
			}
			acc, onboardingURL, err := lib.CreateConnectAccount(ctx, coach.Email, coach.Name, coach.ID)
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
				return
			}
			if err := d.Model(&coach).Update("stripe_account_id", acc.ID).Error; err != nil {
				log.Printf("Error saving account id for coach %d: %s\n", coach.ID, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"status": "onboarding", "onboarding_url": onboardingURL})
		}).
		GET("/stripe/connect/status", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			d := db.GetDb()
			var coach models.User
			if err := d.First(&coach, userId).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status := "not_connected"
			if coach.StripeAccountId != nil {
				status = "onboarding"
			}
			if coach.PayoutReady {
				status = "ready"
			}
			ctx.JSON(http.StatusOK, gin.H{"status": status})
		})
	return g
}
