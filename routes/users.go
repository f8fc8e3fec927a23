package routes

import (
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/handlers/users"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/middleware"

	"github.com/gin-gonic/gin"
)

func UsersRoutes(r *gin.Engine) {
	userRoutes := r.Group("/users")
	userRoutes.Use(middleware.JWTAuth())
	{
		userRoutes.GET("/profile", users.GetUserProfile)
		userRoutes.PUT("/onboarding", users.UpdateOnboarding)
	}
}
