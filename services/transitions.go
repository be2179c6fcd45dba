package services

import "github.com/dev-maui0806/e-siremart-backend/models"

// actorRule decides whether a principal may drive a transition on an order.
type actorRule func(p models.Principal, o *models.Order) bool

// transitions is the complete order state machine. Any (from, to) pair not
// listed is invalid.
var transitions = map[models.OrderStatus]map[models.OrderStatus]actorRule{
	models.OrderStatusCreated: {
		models.OrderStatusShipped:         shopOwnerOrAdmin,
		models.OrderStatusCancelled:       owningCustomer,
		models.OrderStatusRefundRequested: owningCustomer,
		models.OrderStatusCompleted:       adminOrOwningCustomer,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered:       deliveryPersonOwnerOrAdmin,
		models.OrderStatusRefundRequested: owningCustomer,
		models.OrderStatusCompleted:       adminOrOwningCustomer,
	},
	models.OrderStatusRefundRequested: {
		models.OrderStatusRefundDenied:    shopOwnerOrAdmin,
		models.OrderStatusRefundCompleted: shopOwnerOrAdmin,
	},
}

func lookupTransition(from, to models.OrderStatus) (actorRule, bool) {
	rule, ok := transitions[from][to]
	return rule, ok
}

func owningCustomer(p models.Principal, o *models.Order) bool {
	return p.UserID() == o.CustomerID
}

func isAdmin(p models.Principal) bool {
	_, ok := p.(models.Admin)
	return ok
}

func ownsShopOf(p models.Principal, o *models.Order) bool {
	owner, ok := p.(models.ShopOwner)
	return ok && owner.ShopID == o.ShopID
}

func shopOwnerOrAdmin(p models.Principal, o *models.Order) bool {
	return isAdmin(p) || ownsShopOf(p, o)
}

func adminOrOwningCustomer(p models.Principal, o *models.Order) bool {
	return isAdmin(p) || owningCustomer(p, o)
}

func deliveryPersonOwnerOrAdmin(p models.Principal, o *models.Order) bool {
	if d, ok := p.(models.DeliveryPerson); ok {
		return o.DeliveryPersonID != nil && *o.DeliveryPersonID == d.ID
	}
	return shopOwnerOrAdmin(p, o)
}

// canView reports whether p may read the order.
func canView(p models.Principal, o *models.Order) bool {
	return owningCustomer(p, o) || deliveryPersonOwnerOrAdmin(p, o)
}
