package routes

import (
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/handlers/ping"

	"github.com/gin-gonic/gin"
)

func PingRoutes(r *gin.Engine) {
	handler := ping.New()
	r.GET("/ping", handler.HandlePing)
}
