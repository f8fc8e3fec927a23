package routes

import (
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/handlers/unlock"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/middleware"

	"github.com/gin-gonic/gin"
)

func UnlockRoutes(r *gin.Engine) {
	r.POST("/redeem-code", middleware.JWTAuth(), unlock.RedeemCode)
	r.POST("/unlock-codes", middleware.AdminAuth(), unlock.GenerateCode)
}
