package main

import (
	"net/http"

	"cbs/src/common"
	"cbs/src/middlewares"
	"cbs/src/types"

	"github.com/gin-gonic/gin"
)

func adminHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	admin := g.Group("/admin", middlewares.RequireRole(types.ROLE_ADMIN))
	admin.
		GET("/settings/commission", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"data": common.CurrentCommissionSettings()})
		}).
		PUT("/settings/commission", func(ctx *gin.Context) {
			var body types.UpdateCommissionSettingsRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			saved, err := common.SaveCommissionSettings(common.CommissionSettings{
				PlatformFeePct:   *body.PlatformFeePct,
				AthleteFeePct:    *body.AthleteFeePct,
				AthleteFlatCents: *body.AthleteFlatCents,
			})
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": saved})
		})
	return g
}
