package insertion

import "context"

// Resource kinds tracked for compensation.
const (
	KindTopic     = "topic"
	KindEmbedding = "embedding"
	KindBlock     = "block"
)

type undoAction struct {
	kind string
	id   string
	fn   func(ctx context.Context) error
}

// undoStack accumulates compensating deletes in creation order.
type undoStack struct {
	actions []undoAction
}

func (s *undoStack) push(kind, id string, fn func(ctx context.Context) error) {
	s.actions = append(s.actions, undoAction{kind: kind, id: id, fn: fn})
}

func (s *undoStack) len() int { return len(s.actions) }

// unwind runs every action newest first. A failing action is reported and the
// rest still run.
func (s *undoStack) unwind(ctx context.Context, report func(kind, id string, err error)) {
	for i := len(s.actions) - 1; i >= 0; i-- {
		a := s.actions[i]
		report(a.kind, a.id, a.fn(ctx))
	}
	s.actions = nil
}
