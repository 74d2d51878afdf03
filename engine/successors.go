package engine

import (
	"context"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/store"
)

// ProductSuccessor resolves the strongest active warning for a configured
// product. Every selected node counts as a warning source, plus the node
// the product code itself resolves to. Nil means no warning fires.
func (e *Engine) ProductSuccessor(ctx context.Context, code string, selections []Selection) (*store.SuccessorWarning, error) {
	if code == "" && len(selections) == 0 {
		return nil, fault.New(fault.Validation, "either 'code' or 'selections' required")
	}

	var ids []uint
	for _, sel := range selections {
		ids = append(ids, sel.idSet()...)
	}
	if code != "" {
		id, err := e.store.NodeIDByProductCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if id != nil {
			ids = append(ids, *id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return e.store.ActiveProductSuccessor(ctx, ids)
}
