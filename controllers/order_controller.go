package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderController struct {
	orders      services.OrderService
	frontendURL string
	logger      *zap.Logger
}

func NewOrderController(orders services.OrderService, frontendURL string, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, frontendURL: frontendURL, logger: logger}
}

// addressRequest accepts both the snake_case and the storefront's camelCase
// field name.
type addressRequest struct {
	AddressData      *models.Address `json:"address_data"`
	AddressDataCamel *models.Address `json:"addressData"`
}

func (r addressRequest) address() *models.Address {
	if r.AddressData != nil {
		return r.AddressData
	}
	return r.AddressDataCamel
}

// PlaceOrder converts the caller's cart into one order per shop.
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return
	}

	orders, svcErr := oc.orders.CreateFromCheckout(c.Request.Context(), p, c.GetHeader("Idempotency-Key"), req.address())
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"orders": orders})
}

func (oc *OrderController) ListOrders(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)
	orders, total, svcErr := oc.orders.ListOrders(c.Request.Context(), p, page, limit)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "page": page, "limit": limit})
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "orderId")
	if !ok {
		return
	}
	order, svcErr := oc.orders.GetOrder(c.Request.Context(), p, orderID)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) CountOrders(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	counts, svcErr := oc.orders.CountOrders(c.Request.Context(), p)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (oc *OrderController) OrderHistory(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	customerID, ok := uuidParam(c, "customerId")
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)
	orders, total, svcErr := oc.orders.OrderHistory(c.Request.Context(), p, customerID, page, limit)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "page": page, "limit": limit})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus applies a requested status through the state machine.
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "orderId")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	status, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		badRequest(c, "Unknown status "+req.Status)
		return
	}
	order, svcErr := oc.orders.Transition(c.Request.Context(), p, orderID, status)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

type orderRefRequest struct {
	OrderID      string `json:"order_id"`
	OrderIDCamel string `json:"orderId"`
}

func (r orderRefRequest) ref() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.OrderIDCamel
}

// shortcut builds the cancel, refund-request and complete handlers. The
// body names either an order id or a provider order id shared by several
// orders.
func (oc *OrderController) shortcut(status models.OrderStatus, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := currentPrincipal(c)
		if !ok {
			return
		}
		var req orderRefRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ref() == "" {
			badRequest(c, "orderId is required")
			return
		}

		if id, err := uuid.Parse(req.ref()); err == nil {
			order, svcErr := oc.orders.Transition(c.Request.Context(), p, id, status)
			if svcErr != nil {
				oc.renderError(c, svcErr)
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": message, "orders": []models.Order{*order}})
			return
		}

		orders, svcErr := oc.orders.TransitionByProviderOrder(c.Request.Context(), p, req.ref(), status)
		if svcErr != nil {
			oc.renderError(c, svcErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message, "orders": orders})
	}
}

func (oc *OrderController) CancelOrder() gin.HandlerFunc {
	return oc.shortcut(models.OrderStatusCancelled, "Order cancelled")
}

func (oc *OrderController) RefundRequestOrder() gin.HandlerFunc {
	return oc.shortcut(models.OrderStatusRefundRequested, "Refund requested")
}

func (oc *OrderController) CompleteOrder() gin.HandlerFunc {
	return oc.shortcut(models.OrderStatusCompleted, "Order marked as completed")
}

type shipRequest struct {
	OrderID             string `json:"order_id"`
	OrderIDCamel        string `json:"orderId"`
	DeliveryPersonEmail string `json:"delivery_person_email"`
	DeliveryMan         string `json:"deliveryMan"`
}

// ShipOrder assigns a delivery person, which also marks the order Shipped.
func (oc *OrderController) ShipOrder(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req shipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	rawID, email := req.OrderID, req.DeliveryPersonEmail
	if rawID == "" {
		rawID = req.OrderIDCamel
	}
	if email == "" {
		email = req.DeliveryMan
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		badRequest(c, "Invalid order_id format")
		return
	}

	order, svcErr := oc.orders.AssignDelivery(c.Request.Context(), p, orderID, email)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order shipped", "order": order})
}

type feedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

func (oc *OrderController) SubmitFeedback(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "orderId")
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "feedback is required")
		return
	}
	order, svcErr := oc.orders.SubmitFeedback(c.Request.Context(), p, orderID, req.Feedback)
	if svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) DeleteOrder(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "orderId")
	if !ok {
		return
	}
	if svcErr := oc.orders.DeleteOrder(c.Request.Context(), p, orderID); svcErr != nil {
		oc.renderError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}
