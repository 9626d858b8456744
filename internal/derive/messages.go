package derive

import (
	"cmp"
	"slices"

	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// MessageCollapsed reports whether a system message renders collapsed.
// Non-collapsible messages never collapse. An explicit toggle in the store
// wins; otherwise answered choice messages start collapsed and everything
// else starts expanded.
func MessageCollapsed(s *projection.Store, m *types.SystemMessage) bool {
	if m == nil || !m.Collapsible {
		return false
	}
	if v, ok := s.MessageCollapsed[m.ID]; ok {
		return v
	}
	return len(m.Choices) > 0 && m.ChosenOptionID != nil && *m.ChosenOptionID != ""
}

// MessagesNewestFirst returns the system messages ordered by created_at,
// newest first.
func MessagesNewestFirst(s *projection.Store) []*types.SystemMessage {
	out := slices.Clone(s.SystemMessages)
	slices.SortStableFunc(out, func(a, b *types.SystemMessage) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return out
}
