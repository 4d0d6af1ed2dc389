package main

import (
	"net/http"

	"cbs/src/db"
	"cbs/src/middlewares"
	"cbs/src/models"
	"cbs/src/types"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
)

func listingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/listings", func(ctx *gin.Context) {
			d := db.GetDb()
			var data []models.Listing
			q := d.Model(&models.Listing{}).Preload("Coach").Order("created_at desc")
			if kind := ctx.Query("kind"); kind != "" {
				q = q.Where("kind = ?", kind)
			}
			if coach := ctx.Query("coach"); coach != "" {
				q = q.Where("coach_id = ?", coach)
			}
			if err := q.Find(&data).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
		}).
		GET("/listings/:id", func(ctx *gin.Context) {
			id, ok := parseRequestID(ctx)
			if !ok {
				return
			}
			d := db.GetDb()
			var listing models.Listing
			if err := d.Preload("Coach").First(&listing, "id = ?", id).Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": listing})
		}).
		POST("/listings", middlewares.RequireRole(types.ROLE_COACH), func(ctx *gin.Context) {
			var body types.CreateListingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			listing := models.Listing{
				CoachID:         userId,
				Title:           body.Title,
				Slug:            slug.Make(body.Title),
				Kind:            types.ListingKind(body.Kind),
				PriceCents:      body.PriceCents,
				Currency:        body.Currency,
				DurationMinutes: body.DurationMinutes,
				TurnaroundHours: body.TurnaroundHours,
			}
			d := db.GetDb()
			if err := d.Create(&listing).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": listing})
		})
	return g
}
