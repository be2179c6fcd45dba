package routes

import (
	"github.com/dev-maui0806/e-siremart-backend/controllers"
	"github.com/gin-gonic/gin"
)

// RegisterOrderRoutes mounts the order and payment API under /api/v1.
// Provider callbacks are unauthenticated; they carry their own signatures.
func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController, auth gin.HandlerFunc, paymentLimit gin.HandlerFunc) {
	public := r.Group("/api/v1/orders")
	public.GET("/success", oc.CheckoutSuccess)
	public.POST("/webhook-checkout", oc.StripeWebhook)
	public.POST("/razorpay/webhook", oc.RazorpayWebhook)

	orders := r.Group("/api/v1/orders")
	orders.Use(auth)

	payments := orders.Group("")
	payments.Use(paymentLimit)
	payments.POST("/place-order", oc.PlaceOrder)
	payments.POST("/checkout-session", oc.CreateCheckoutSession)
	payments.POST("/create-order", oc.CreatePayableOrders)
	payments.POST("/verify-payment", oc.VerifyPayment)

	orders.GET("", oc.ListOrders)
	orders.GET("/counts", oc.CountOrders)
	orders.GET("/order-history/:customerId", oc.OrderHistory)
	orders.GET("/:orderId", oc.GetOrder)

	orders.PUT("/:orderId/status", oc.UpdateStatus)
	orders.PUT("/:orderId/feedback", oc.SubmitFeedback)
	orders.PUT("/cancelOrder", oc.CancelOrder())
	orders.PUT("/refundRequestOrder", oc.RefundRequestOrder())
	orders.PUT("/completeOrder", oc.CompleteOrder())
	orders.PATCH("/ship", oc.ShipOrder)
	orders.DELETE("/deleteOrder/:orderId", oc.DeleteOrder)
}

// NoopMiddleware is used where a middleware slot is optional.
func NoopMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}
