package routes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dev-maui0806/e-siremart-backend/controllers"
	"github.com/dev-maui0806/e-siremart-backend/middleware"
	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/routes"
	"github.com/dev-maui0806/e-siremart-backend/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubService answers every call with a not-found error so that a routed
// request can be told apart from an unrouted one.
type stubService struct{ services.OrderService }

var errNotFound = &services.ServiceError{StatusCode: http.StatusNotFound, Kind: services.KindNotFound, Message: "Order not found"}

func (stubService) ReconcileWebhookEvent(context.Context, string, []byte, string) (*services.ReconcileResult, *services.ServiceError) {
	return &services.ReconcileResult{Outcome: services.OutcomeIgnored}, nil
}

func (stubService) ReconcileCheckoutSuccess(context.Context, string) (*services.ReconcileResult, *services.ServiceError) {
	return nil, errNotFound
}

func (stubService) GetOrder(context.Context, models.Principal, uuid.UUID) (*models.Order, *services.ServiceError) {
	return nil, errNotFound
}

func (stubService) CreateCheckoutSession(context.Context, models.Principal, *models.Address) (*providers.ProviderRef, *services.ServiceError) {
	return nil, errNotFound
}

func newRouter(auth, limit gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	oc := controllers.NewOrderController(stubService{}, "http://localhost:3000", zap.NewNop())
	routes.RegisterOrderRoutes(r, oc, auth, limit)
	return r
}

func denyAll(c *gin.Context) {
	c.AbortWithStatus(http.StatusUnauthorized)
}

func serve(r *gin.Engine, method, path, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestProviderCallbacksArePublic(t *testing.T) {
	r := newRouter(denyAll, routes.NoopMiddleware())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/orders/webhook-checkout", `{}`))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/orders/razorpay/webhook", `{}`))
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/orders/success?session_id=cs_1", ""))
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	r := newRouter(denyAll, routes.NoopMiddleware())

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/orders/place-order"},
		{http.MethodPost, "/api/v1/orders/checkout-session"},
		{http.MethodPost, "/api/v1/orders/create-order"},
		{http.MethodPost, "/api/v1/orders/verify-payment"},
		{http.MethodGet, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/orders/counts"},
		{http.MethodGet, "/api/v1/orders/" + uuid.NewString()},
		{http.MethodPut, "/api/v1/orders/" + uuid.NewString() + "/status"},
		{http.MethodPut, "/api/v1/orders/cancelOrder"},
		{http.MethodPatch, "/api/v1/orders/ship"},
		{http.MethodDelete, "/api/v1/orders/deleteOrder/" + uuid.NewString()},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(r, p.method, p.path, `{}`))
		})
	}
}

func TestPaymentLimiterScopedToPaymentRoutes(t *testing.T) {
	allow := func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, models.Customer{ID: uuid.New()})
		c.Next()
	}
	limited := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTooManyRequests)
	}
	r := newRouter(allow, limited)

	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/api/v1/orders/checkout-session", `{}`))
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), ""))
}
