// Package routing decides which wallet account a settlement lands in.
// Pure decision logic, no side effects.
package routing

import "errors"

// Universal is the account key for points not locked to any organization.
const Universal = "universal"

// ErrMissingHostOrg reports a business interaction without a host
// organization. This is a data-integrity failure in the upstream event,
// never recovered silently.
var ErrMissingHostOrg = errors.New("routing: missing host organization")

// Route returns the destination account key for a settlement.
//
// Volunteer-origin points follow the user's stored preference, falling back
// to the hosting organization and finally to the universal pool.
// Business-origin points are locked to the hosting organization
// unconditionally; they never fall back to the preference or the universal
// pool, so a business's promotional points cannot leak value to
// competitors.
func Route(hostOrgID string, volunteer bool, preferredOrg string) (string, error) {
	if volunteer {
		if preferredOrg != "" {
			return preferredOrg, nil
		}
		if hostOrgID != "" {
			return hostOrgID, nil
		}
		return Universal, nil
	}

	if hostOrgID == "" {
		return "", ErrMissingHostOrg
	}
	return hostOrgID, nil
}
