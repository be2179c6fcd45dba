package controllers_test

import (
	"context"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/services"
	"github.com/google/uuid"
)

// mockOrderService implements services.OrderService with per-method hooks.
type mockOrderService struct {
	createFromCheckoutFn   func(ctx context.Context, p models.Principal, key string, addr *models.Address) ([]models.Order, *services.ServiceError)
	checkoutSessionFn      func(ctx context.Context, p models.Principal, addr *models.Address) (*providers.ProviderRef, *services.ServiceError)
	payableOrdersFn        func(ctx context.Context, p models.Principal, addr *models.Address) ([]providers.ProviderRef, *services.ServiceError)
	completionFn           func(ctx context.Context, c services.Confirmation) (*services.ReconcileResult, *services.ServiceError)
	confirmationFn         func(ctx context.Context, p models.Principal, oid, pid, sig string) (*services.ReconcileResult, *services.ServiceError)
	checkoutSuccessFn      func(ctx context.Context, sessionID string) (*services.ReconcileResult, *services.ServiceError)
	webhookFn              func(ctx context.Context, provider string, body []byte, sig string) (*services.ReconcileResult, *services.ServiceError)
	providerEventFn        func(ctx context.Context, provider string, evt *providers.WebhookEvent) (*services.ReconcileResult, *services.ServiceError)
	transitionFn           func(ctx context.Context, p models.Principal, id uuid.UUID, st models.OrderStatus) (*models.Order, *services.ServiceError)
	transitionByProviderFn func(ctx context.Context, p models.Principal, ref string, st models.OrderStatus) ([]models.Order, *services.ServiceError)
	assignFn               func(ctx context.Context, p models.Principal, id uuid.UUID, email string) (*models.Order, *services.ServiceError)
	listFn                 func(ctx context.Context, p models.Principal, page, limit int) ([]models.Order, int64, *services.ServiceError)
	getFn                  func(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Order, *services.ServiceError)
	countFn                func(ctx context.Context, p models.Principal) (map[models.OrderStatus]int64, *services.ServiceError)
	historyFn              func(ctx context.Context, p models.Principal, customerID uuid.UUID, page, limit int) ([]models.Order, int64, *services.ServiceError)
	deleteFn               func(ctx context.Context, p models.Principal, id uuid.UUID) *services.ServiceError
	feedbackFn             func(ctx context.Context, p models.Principal, id uuid.UUID, feedback string) (*models.Order, *services.ServiceError)
}

func (m *mockOrderService) CreateFromCheckout(ctx context.Context, p models.Principal, key string, addr *models.Address) ([]models.Order, *services.ServiceError) {
	return m.createFromCheckoutFn(ctx, p, key, addr)
}
func (m *mockOrderService) CreateCheckoutSession(ctx context.Context, p models.Principal, addr *models.Address) (*providers.ProviderRef, *services.ServiceError) {
	return m.checkoutSessionFn(ctx, p, addr)
}
func (m *mockOrderService) CreatePayableOrders(ctx context.Context, p models.Principal, addr *models.Address) ([]providers.ProviderRef, *services.ServiceError) {
	return m.payableOrdersFn(ctx, p, addr)
}
func (m *mockOrderService) ReconcilePayableCompletion(ctx context.Context, c services.Confirmation) (*services.ReconcileResult, *services.ServiceError) {
	return m.completionFn(ctx, c)
}
func (m *mockOrderService) ReconcilePaymentConfirmation(ctx context.Context, p models.Principal, oid, pid, sig string) (*services.ReconcileResult, *services.ServiceError) {
	return m.confirmationFn(ctx, p, oid, pid, sig)
}
func (m *mockOrderService) ReconcileCheckoutSuccess(ctx context.Context, sessionID string) (*services.ReconcileResult, *services.ServiceError) {
	return m.checkoutSuccessFn(ctx, sessionID)
}
func (m *mockOrderService) ReconcileWebhookEvent(ctx context.Context, provider string, body []byte, sig string) (*services.ReconcileResult, *services.ServiceError) {
	return m.webhookFn(ctx, provider, body, sig)
}
func (m *mockOrderService) ReconcileProviderEvent(ctx context.Context, provider string, evt *providers.WebhookEvent) (*services.ReconcileResult, *services.ServiceError) {
	return m.providerEventFn(ctx, provider, evt)
}
func (m *mockOrderService) Transition(ctx context.Context, p models.Principal, id uuid.UUID, st models.OrderStatus) (*models.Order, *services.ServiceError) {
	return m.transitionFn(ctx, p, id, st)
}
func (m *mockOrderService) TransitionByProviderOrder(ctx context.Context, p models.Principal, ref string, st models.OrderStatus) ([]models.Order, *services.ServiceError) {
	return m.transitionByProviderFn(ctx, p, ref, st)
}
func (m *mockOrderService) AssignDelivery(ctx context.Context, p models.Principal, id uuid.UUID, email string) (*models.Order, *services.ServiceError) {
	return m.assignFn(ctx, p, id, email)
}
func (m *mockOrderService) ListOrders(ctx context.Context, p models.Principal, page, limit int) ([]models.Order, int64, *services.ServiceError) {
	return m.listFn(ctx, p, page, limit)
}
func (m *mockOrderService) GetOrder(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Order, *services.ServiceError) {
	return m.getFn(ctx, p, id)
}
func (m *mockOrderService) CountOrders(ctx context.Context, p models.Principal) (map[models.OrderStatus]int64, *services.ServiceError) {
	return m.countFn(ctx, p)
}
func (m *mockOrderService) OrderHistory(ctx context.Context, p models.Principal, customerID uuid.UUID, page, limit int) ([]models.Order, int64, *services.ServiceError) {
	return m.historyFn(ctx, p, customerID, page, limit)
}
func (m *mockOrderService) DeleteOrder(ctx context.Context, p models.Principal, id uuid.UUID) *services.ServiceError {
	return m.deleteFn(ctx, p, id)
}
func (m *mockOrderService) SubmitFeedback(ctx context.Context, p models.Principal, id uuid.UUID, feedback string) (*models.Order, *services.ServiceError) {
	return m.feedbackFn(ctx, p, id, feedback)
}
