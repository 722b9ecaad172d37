package checkout

import (
	"fmt"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller. Capabilities are decided from it explicitly,
// never from ambient request state.
type Actor struct {
	UserID int64
	Role   Role
}

func Customer(userID int64) Actor { return Actor{UserID: userID, Role: RoleCustomer} }

func Admin(userID int64) Actor { return Actor{UserID: userID, Role: RoleAdmin} }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) Owns(o orders.Order) bool { return a.UserID == o.UserID }

func (a Actor) validate() error {
	if a.UserID <= 0 {
		return fmt.Errorf("%w: user id is required", orders.ErrValidation)
	}
	return nil
}

func (a Actor) requireAdmin() error {
	if !a.IsAdmin() {
		return fmt.Errorf("%w: administrator capability required", orders.ErrForbidden)
	}
	return nil
}
