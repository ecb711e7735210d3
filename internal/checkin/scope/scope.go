// Package scope decides whether an operator may check attendees in to an event.
package scope

import (
	"eventpass/internal/checkin/models"
	id "eventpass/pkg/domain"
)

// IsAuthorized is total: any role or club combination yields an answer.
// Top-level admins may check in anywhere. Club admins and volunteers may check in
// only for events owned by their own club. Everyone else is refused, as is any
// club-scoped operator when either side lacks a club.
func IsAuthorized(role models.Role, operatorClub, eventClub id.ClubID) bool {
	if role == models.RoleAdmin {
		return true
	}
	if !role.IsClubScoped() {
		return false
	}
	if operatorClub == "" || eventClub == "" {
		return false
	}
	return operatorClub == eventClub
}
