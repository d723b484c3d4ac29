package fleet

import (
	"context"

	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/kb"
)

// Follow keeps the registry's central body in step with the catalog
// selection. The registry switches to the currently selected body right away
// if it differs. Call the returned function to stop following.
func (r *Registry) Follow(catalog *kb.KnowledgeBase) (stop func(), err error) {
	if sel := catalog.Selected(); sel != r.Body() {
		if err := r.SetBody(sel); err != nil {
			return nil, err
		}
	}
	return catalog.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventBodySelected {
			return
		}
		if err := r.SetBody(ev.Body); err != nil {
			r.log.Warn(context.Background(), "ignoring catalog body change",
				logging.String("body", ev.Body.Name),
				logging.Err(err),
			)
		}
	}), nil
}
