package models

import "github.com/google/uuid"

// Principal is the authenticated identity, resolved once per request.
// The set of variants is closed: Customer, ShopOwner, DeliveryPerson, Admin.
type Principal interface {
	UserID() uuid.UUID
	Role() Role
	principal()
}

type Customer struct {
	ID uuid.UUID
}

type ShopOwner struct {
	ID     uuid.UUID
	ShopID uuid.UUID
}

type DeliveryPerson struct {
	ID    uuid.UUID
	Email string
}

type Admin struct {
	ID uuid.UUID
}

func (p Customer) UserID() uuid.UUID       { return p.ID }
func (p ShopOwner) UserID() uuid.UUID      { return p.ID }
func (p DeliveryPerson) UserID() uuid.UUID { return p.ID }
func (p Admin) UserID() uuid.UUID          { return p.ID }

func (Customer) Role() Role       { return RoleCustomer }
func (ShopOwner) Role() Role      { return RoleShopOwner }
func (DeliveryPerson) Role() Role { return RoleDeliveryPerson }
func (Admin) Role() Role          { return RoleAdmin }

func (Customer) principal()       {}
func (ShopOwner) principal()      {}
func (DeliveryPerson) principal() {}
func (Admin) principal()          {}
