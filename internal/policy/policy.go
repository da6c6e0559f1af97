// Package policy holds the role-based access rules consulted before every
// mutating or record-returning operation. Rules are pure functions of the
// actor and the resource; nothing here touches storage.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/deskforge/helpdesk-service/internal/domain"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

// Resource identifies the kind of record a rule applies to.
type Resource string

// Operation identifies what the actor is attempting.
type Operation string

const (
	ResourceTicket Resource = "ticket"
	ResourceQueue  Resource = "queue"

	OpUpdate Operation = "update"
)

type maskKey struct {
	role     domain.Role
	resource Resource
	op       Operation
}

// fieldMasks is the per-role allow-list of patch fields, keyed by
// (role, resource, operation). A missing entry means the role may touch every
// field of the resource.
var fieldMasks = map[maskKey]map[string]struct{}{
	{domain.RoleCustomer, ResourceTicket, OpUpdate}: {
		"title":       {},
		"description": {},
	},
}

// CheckFieldMask rejects the whole patch when any supplied field falls
// outside the role's allow-list. No partial application.
func CheckFieldMask(role domain.Role, resource Resource, op Operation, fields []string) error {
	mask, restricted := fieldMasks[maskKey{role, resource, op}]
	if !restricted {
		return nil
	}
	var denied []string
	for _, field := range fields {
		if _, ok := mask[field]; !ok {
			denied = append(denied, field)
		}
	}
	if len(denied) == 0 {
		return nil
	}
	sort.Strings(denied)
	return apperrors.NewForbidden(fmt.Sprintf("role %s may not update fields: %s", role, strings.Join(denied, ", ")))
}

// CanViewTicket reports whether the actor may read the ticket. Customers see
// only their own tickets; staff see everything.
func CanViewTicket(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.Role.IsStaff() {
		return true
	}
	return ticket.CustomerID == actor.ID
}

// CanModifyTicket reports whether the actor may update or comment on the
// ticket. Same ownership rule as visibility.
func CanModifyTicket(actor *domain.User, ticket *domain.Ticket) bool {
	return CanViewTicket(actor, ticket)
}

// CheckInternalComment rejects internal comments from customers.
func CheckInternalComment(actor *domain.User, isInternal bool) error {
	if isInternal && !actor.Role.IsStaff() {
		return apperrors.NewForbidden("internal comments are restricted to staff")
	}
	return nil
}

// CanSeeInternalComments reports whether ticket reads include internal
// comments for this actor.
func CanSeeInternalComments(actor *domain.User) bool {
	return actor.Role.IsStaff()
}

// CanAssignTickets gates ticket assignment and queue moves.
func CanAssignTickets(role domain.Role) bool {
	return role.IsStaff()
}

// CanManageQueues gates queue creation, update, and deletion.
func CanManageQueues(role domain.Role) bool {
	return role == domain.RoleAdmin
}

// ScopeTicketFilter pins the customer filter to the actor for non-staff
// callers so listing can never leak other customers' tickets.
func ScopeTicketFilter(actor *domain.User, customerID *string) *string {
	if actor.Role.IsStaff() {
		return customerID
	}
	id := actor.ID
	return &id
}
