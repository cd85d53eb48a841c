package broker

import (
	"github.com/dopectx/core/internal/registry"
)

// documentationRoleTag marks a backend as a documentation/reference
// lookup source for the documentation-first-with-fallback rule.
const documentationRoleTag = "documentation"

// resolveCandidates orders the backends eligible to serve a tool
// invocation for one role:
//  1. Exclude disabled and known-down backends.
//  2. If the tool is documentation-preferred, try documentation-tagged
//     backends before any others, regardless of priority.
//  3. Within each tier, order by descending priority (registry.ByRole
//     already does this).
func resolveCandidates(candidates []*registry.Backend, toolName string, docPreferred map[string]bool) []*registry.Backend {
	eligible := make([]*registry.Backend, 0, len(candidates))
	for _, b := range candidates {
		if !b.Config.Enabled || b.Health == registry.HealthDown {
			continue
		}
		eligible = append(eligible, b)
	}

	if !docPreferred[toolName] {
		return eligible
	}

	var docs, rest []*registry.Backend
	for _, b := range eligible {
		if b.HasRole(documentationRoleTag) {
			docs = append(docs, b)
		} else {
			rest = append(rest, b)
		}
	}
	return append(docs, rest...)
}
