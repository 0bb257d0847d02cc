package identity

import "context"

// Static answers permission checks from a fixed supervisor allowlist. An
// empty allowlist lets any named actor resolve escalations, which fits
// single-team deployments that have no user directory to consult.
type Static struct {
	supervisors map[string]struct{}
}

func NewStatic(supervisorIDs []string) *Static {
	supervisors := make(map[string]struct{}, len(supervisorIDs))
	for _, id := range supervisorIDs {
		if id != "" {
			supervisors[id] = struct{}{}
		}
	}
	return &Static{supervisors: supervisors}
}

func (s *Static) CanResolveEscalations(_ context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if len(s.supervisors) == 0 {
		return true, nil
	}
	_, ok := s.supervisors[userID]
	return ok, nil
}
