package domain

import "strings"

// Role задаёт роль аутентифицированного принципала.
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleEmployee      Role = "employee"
	RoleAdministrator Role = "administrator"
)

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleEmployee, RoleAdministrator:
		return true
	default:
		return false
	}
}

// IsStaff сообщает, относится ли роль к персоналу (employee/administrator).
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdministrator
}

// ParseRole разбирает роль без учёта регистра.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Principal описывает вызывающую сторону, уже аутентифицированную транспортным слоем.
type Principal struct {
	ID     int64
	Role   Role
	Active bool
}

// Actor фиксирует в заказе принципала-создателя.
type Actor struct {
	ID   int64
	Role Role
}

// Actor возвращает role-tagged ссылку на принципала.
func (p Principal) Actor() Actor {
	return Actor{ID: p.ID, Role: p.Role}
}
