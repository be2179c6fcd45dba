package controllers

import (
	"net/http"
	"strings"

	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps provider webhook payloads.
const maxWebhookBody = 1 << 20

// CreateCheckoutSession starts a hosted checkout for the whole cart.
func (oc *OrderController) CreateCheckoutSession(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	ref, svcErr := oc.orders.CreateCheckoutSession(c.Request.Context(), p, req.address())
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": ref.ID, "url": ref.RedirectURL})
}

// CheckoutSuccess is the browser redirect target after a hosted checkout.
// It answers with a redirect to the storefront, or plain text on failure.
func (oc *OrderController) CheckoutSuccess(c *gin.Context) {
	result, svcErr := oc.orders.ReconcileCheckoutSuccess(c.Request.Context(), c.Query("session_id"))
	if svcErr != nil {
		if svcErr.StatusCode >= http.StatusInternalServerError {
			oc.renderError(c, svcErr)
			return
		}
		c.String(svcErr.StatusCode, svcErr.Message)
		return
	}
	target := strings.TrimSuffix(oc.frontendURL, "/") + "/orders?payment=" + string(result.Outcome)
	c.Redirect(http.StatusSeeOther, target)
}

// CreatePayableOrders creates one provider order per shop in the cart.
func (oc *OrderController) CreatePayableOrders(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	refs, svcErr := oc.orders.CreatePayableOrders(c.Request.Context(), p, req.address())
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "orders": refs})
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// VerifyPayment confirms a payment the client completed with the provider.
func (oc *OrderController) VerifyPayment(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
		return
	}
	result, svcErr := oc.orders.ReconcilePaymentConfirmation(c.Request.Context(), p, req.OrderID, req.PaymentID, req.Signature)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": result.Outcome, "orders": result.Orders})
}

func (oc *OrderController) StripeWebhook(c *gin.Context) {
	oc.webhook(c, providers.ProviderStripe, "Stripe-Signature")
}

func (oc *OrderController) RazorpayWebhook(c *gin.Context) {
	oc.webhook(c, providers.ProviderRazorpay, "X-Razorpay-Signature")
}

// webhook hands the untouched body to the provider for authentication.
func (oc *OrderController) webhook(c *gin.Context, provider, signatureHeader string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Unreadable webhook body")
		return
	}
	result, svcErr := oc.orders.ReconcileWebhookEvent(c.Request.Context(), provider, body, c.GetHeader(signatureHeader))
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": result.Outcome})
}
