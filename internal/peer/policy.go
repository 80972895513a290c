package peer

import "studylink/internal/core/domain"

// OfferPolicy decides which side of a link creates the offer. Exactly one
// side must return true for any pair, otherwise both peers offer at once
// and the negotiation glares.
type OfferPolicy func(local, remote domain.Participant) bool

// DefaultOfferPolicy: the participant already in the room offers to the
// newcomer. Ties on join time fall back to host role, then to the lower
// user id, so the predicate stays antisymmetric.
func DefaultOfferPolicy(local, remote domain.Participant) bool {
	if local.JoinedAt.Before(remote.JoinedAt) {
		return true
	}
	if remote.JoinedAt.Before(local.JoinedAt) {
		return false
	}
	if local.Role == domain.RoleHost && remote.Role != domain.RoleHost {
		return true
	}
	if remote.Role == domain.RoleHost && local.Role != domain.RoleHost {
		return false
	}
	return local.UserID < remote.UserID
}
