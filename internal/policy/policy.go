// Package policy решает, может ли принципал выполнить операцию над корзинами и заказами.
package policy

import "github.com/vladislavdragonenkov/pedidos/internal/domain"

// Operation обозначает вид операции, проверяемый до захвата блокировок.
type Operation string

const (
	OpCartAddProduct       Operation = "cart.add_product"
	OpCartRemoveProduct    Operation = "cart.remove_product"
	OpCartUpdateQuantity   Operation = "cart.update_quantity"
	OpCartClear            Operation = "cart.clear"
	OpCartView             Operation = "cart.view"
	OpCheckout             Operation = "order.checkout"
	OpCreateWalkInOrder    Operation = "order.create_walk_in"
	OpAddProductToOrder    Operation = "order.add_product"
	OpRemoveProductOrder   Operation = "order.remove_product"
	OpDeleteOrder          Operation = "order.delete"
	OpUpdateOrderStatus    Operation = "order.update_status"
	OpGetOrderByID         Operation = "order.get_by_id"
	OpGetOwnOrderDetail    Operation = "order.get_own_detail"
	OpListOrderHistory     Operation = "order.list_history"
	OpListOrdersInProgress Operation = "order.list_in_progress"
	OpCheckOrderStatus     Operation = "order.check_status"
	OpListAllOrders        Operation = "order.list_all"
)

var (
	customerOnly = []domain.Role{domain.RoleCustomer}
	staffOnly    = []domain.Role{domain.RoleEmployee, domain.RoleAdministrator}
)

var rules = map[Operation][]domain.Role{
	OpCartAddProduct:       customerOnly,
	OpCartRemoveProduct:    customerOnly,
	OpCartUpdateQuantity:   customerOnly,
	OpCartClear:            customerOnly,
	OpCartView:             customerOnly,
	OpCheckout:             customerOnly,
	OpCreateWalkInOrder:    staffOnly,
	OpAddProductToOrder:    staffOnly,
	OpRemoveProductOrder:   staffOnly,
	OpDeleteOrder:          staffOnly,
	OpUpdateOrderStatus:    staffOnly,
	OpGetOrderByID:         staffOnly,
	OpGetOwnOrderDetail:    customerOnly,
	OpListOrderHistory:     customerOnly,
	OpListOrdersInProgress: customerOnly,
	OpCheckOrderStatus:     customerOnly,
	OpListAllOrders:        staffOnly,
}

// Authorize отображает пару (принципал, операция) в allow/deny без побочных эффектов.
// Неактивный принципал получает отказ раньше, чем проверяется роль.
func Authorize(principal domain.Principal, op Operation) error {
	if !principal.Active {
		return domain.ErrPrincipalInactive
	}
	for _, role := range rules[op] {
		if principal.Role == role {
			return nil
		}
	}
	return domain.ErrRoleDenied
}

// Operations возвращает все известные операции.
func Operations() []Operation {
	ops := make([]Operation, 0, len(rules))
	for op := range rules {
		ops = append(ops, op)
	}
	return ops
}
