package routes

import (
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/handlers/stripe"
	"github.com/Gulzhigitov-Baiaman/nosmoking-sub000/middleware"

	"github.com/gin-gonic/gin"
)

func SubscriptionRoutes(r *gin.Engine) {
	authed := r.Group("")
	authed.Use(middleware.JWTAuth())
	{
		authed.POST("/activate-subscription", stripe.ActivateSubscription)
		authed.POST("/check-subscription", stripe.CheckSubscription)
		authed.POST("/create-checkout", stripe.CreateCheckout)
		authed.POST("/customer-portal", stripe.CustomerPortal)
		authed.POST("/handle-subscription-cancel", stripe.HandleSubscriptionCancel)
		authed.GET("/subscription", stripe.GetSubscription)
	}
	r.POST("/stripe-webhook", stripe.StripeWebhookHandler)
}
