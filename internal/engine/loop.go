package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/identity"
)

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// Must be called from exactly ONE goroutine. Failures inside the loop are
// logged and processing continues; nothing the loop does can fail an
// operation after it has been acknowledged.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("cart controller already running")
	}
	c.runCtx = ctx
	defer c.stop.Do(func() { close(c.stopped) })

	c.logger.Info("cart controller starting",
		"identity", c.identity.String(),
		"serialize_items", c.serialize)

	for {
		if ev, ok := c.queue.TryDequeue(); ok {
			c.processEvent(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("cart controller stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case _, open := <-c.queue.Wait():
			if !open && c.queue.Len() == 0 {
				c.logger.Info("cart controller stopping: queue closed")
				return nil
			}
		}
	}
}

// processEvent routes an event to its handler, publishes the resulting
// state and acknowledges the caller.
func (c *Controller) processEvent(ctx context.Context, ev event) {
	c.logger.Debug("processing event", "kind", ev.kind.String(), "item_id", ev.itemID)

	switch ev.kind {
	case evStart:
		c.handleStart(ctx)
	case evAdd:
		c.handleAdd(ctx, ev.record, ev.quantity)
	case evUpdate:
		c.handleUpdate(ctx, ev.itemID, ev.quantity)
	case evRemove:
		c.handleRemove(ctx, ev.itemID)
	case evClear:
		c.handleClear(ctx)
	case evSync:
		c.handleSync(ctx)
	case evIdentity:
		c.handleIdentity(ctx, ev.identity)
	case evFlush:
		// Acknowledged by releaseFlushers.
	case evCompletion:
		if ev.completion == nil {
			c.logger.Error("completion event missing completion data")
			break
		}
		c.handleCompletion(ctx, ev.completion)
	default:
		c.logger.Error("unknown event kind", "kind", int(ev.kind))
	}

	c.publish()

	if ev.kind == evFlush {
		c.flushers = append(c.flushers, ev.done)
	} else if ev.done != nil {
		ev.done <- nil
	}
	c.releaseFlushers()
}

func (c *Controller) handleStart(ctx context.Context) {
	if c.identity.IsAuthenticated() {
		c.hydrate(ctx, c.opIDs.Generate())
		return
	}
	loaded := c.persist.Read(ctx)
	if len(loaded.Items) > 0 {
		c.dispatch("", cart.LoadCart(loaded.Items...))
	}
	c.logger.Info("cart loaded from snapshot", "items", len(c.state.Items), "total_items", c.state.TotalItems)
}

func (c *Controller) handleAdd(ctx context.Context, rec cart.Record, qty int) {
	it := cart.Normalize(rec)
	if it.ID == "" {
		c.logger.Warn("add ignored: item has no id", "record_fields", len(rec))
		c.notifier.Notify(Notice{Kind: NoticeFailure, Op: OpAddToCart, Message: "Could not add item: it has no id"})
		return
	}
	it.Quantity = qty
	it = cart.NormalizeItem(it)

	opID := c.opIDs.Generate()
	c.commit(ctx, opID, cart.AddItem(it))

	if !c.identity.IsAuthenticated() {
		c.notifySuccess(OpAddToCart, opID, it.ID, fmt.Sprintf("Added %s to cart", label(it)))
		return
	}

	user, ref, n, price := c.identity.UserID, itemRef(it), it.Quantity, it.UnitPrice
	c.launch(&request{
		op:     OpAddToCart,
		opID:   opID,
		itemID: it.ID,
		item:   it,
		target: n,
		call: func(ctx context.Context, _ string) (result, error) {
			ack, err := c.remote.AddItem(ctx, user, ref, n, price)
			return result{ack: ack}, err
		},
	})
}

func (c *Controller) handleUpdate(ctx context.Context, id string, qty int) {
	prev, ok := c.state.Find(id)
	if !ok {
		c.logger.Debug("update ignored: item not in cart", "item_id", id)
		return
	}
	qty = max(qty, 1)

	opID := c.opIDs.Generate()
	c.commit(ctx, opID, cart.UpdateQuantity(id, qty))

	if !c.identity.IsAuthenticated() {
		c.notifySuccess(OpUpdateQuantity, opID, id, fmt.Sprintf("Updated %s quantity to %d", label(prev), qty))
		return
	}

	c.launch(&request{
		op:     OpUpdateQuantity,
		opID:   opID,
		itemID: id,
		item:   prev,
		undo:   undo{quantity: prev.Quantity},
		target: qty,
		call: func(ctx context.Context, lineID string) (result, error) {
			ack, err := c.remote.UpdateItem(ctx, lineID, qty)
			return result{ack: ack}, err
		},
	})
}

func (c *Controller) handleRemove(ctx context.Context, id string) {
	prev, ok := c.state.Find(id)
	if !ok {
		c.logger.Debug("remove ignored: item not in cart", "item_id", id)
		return
	}

	opID := c.opIDs.Generate()
	c.commit(ctx, opID, cart.RemoveItem(id))

	if !c.identity.IsAuthenticated() {
		c.notifySuccess(OpRemoveFromCart, opID, id, fmt.Sprintf("Removed %s from cart", label(prev)))
		return
	}

	c.launch(&request{
		op:     OpRemoveFromCart,
		opID:   opID,
		itemID: id,
		item:   prev,
		undo:   undo{item: prev},
		call: func(ctx context.Context, lineID string) (result, error) {
			ack, err := c.remote.RemoveItem(ctx, lineID)
			return result{ack: ack}, err
		},
	})
}

func (c *Controller) handleClear(ctx context.Context) {
	captured := c.state.Clone().Items

	opID := c.opIDs.Generate()
	c.dispatch(opID, cart.ClearCart())
	c.persist.Clear(ctx)

	if !c.identity.IsAuthenticated() {
		c.notifySuccess(OpClearCart, opID, "", "Cart cleared")
		return
	}

	user := c.identity.UserID
	c.launch(&request{
		op:   OpClearCart,
		opID: opID,
		undo: undo{items: captured},
		call: func(ctx context.Context, _ string) (result, error) {
			ack, err := c.remote.ClearCart(ctx, user)
			return result{ack: ack}, err
		},
	})
}

func (c *Controller) handleSync(ctx context.Context) {
	if !c.identity.IsAuthenticated() {
		c.logger.Debug("sync ignored: no identity")
		return
	}
	c.hydrate(ctx, c.opIDs.Generate())
}

// handleIdentity applies an identity transition. Every transition starts a
// new epoch: completions of calls issued under the previous identity are
// discarded when they arrive.
func (c *Controller) handleIdentity(ctx context.Context, next identity.Identity) {
	if next == c.identity {
		return
	}
	prev := c.identity

	c.epoch++
	c.hydrating, c.mutating = 0, 0
	c.dropQueued()
	c.lines.reset()
	c.identity = next

	if prev.IsAuthenticated() {
		c.dispatch("", cart.ClearCart())
		c.persist.Clear(ctx)
		if c.state.Loading {
			c.dispatch("", cart.SetLoading(false))
		}
		c.logger.Info("signed out, cart discarded", "user", prev.UserID)
	}

	if next.IsAuthenticated() {
		c.logger.Info("signed in, hydrating cart", "user", next.UserID)
		c.hydrate(ctx, c.opIDs.Generate())
	}
}

// hydrate fetches the remote cart; the completion replaces local items.
func (c *Controller) hydrate(_ context.Context, opID string) {
	if !c.state.Loading {
		c.dispatch(opID, cart.SetLoading(true))
	}
	user := c.identity.UserID
	c.launch(&request{
		op:   OpSyncCart,
		opID: opID,
		call: func(ctx context.Context, _ string) (result, error) {
			recs, err := c.remote.FetchCart(ctx, user)
			return result{records: recs}, err
		},
	})
}

func (c *Controller) handleCompletion(ctx context.Context, cmp *completion) {
	req := cmp.req
	c.inflight--

	if req.epoch != c.epoch {
		c.logger.Warn("discarding stale completion",
			"op", req.op,
			"op_id", req.opID,
			"item_id", req.itemID,
			"error", cmp.err)
		return
	}
	if req.op == OpSyncCart {
		c.hydrating--
	} else {
		c.mutating--
	}

	if cmp.err != nil {
		c.rollback(ctx, req, cmp.err)
	} else {
		c.confirm(ctx, req, cmp.result)
	}
	c.advance(req)
}

func (c *Controller) confirm(ctx context.Context, req *request, res result) {
	c.logger.Debug("remote confirmed", "op", req.op, "op_id", req.opID, "item_id", req.itemID)

	var msg string
	switch req.op {
	case OpSyncCart:
		c.commit(ctx, req.opID, cart.LoadRecords(res.records...))
		c.lines.rebuild(c.state.Items)
		if c.hydrating == 0 {
			c.dispatch(req.opID, cart.SetLoading(false))
		}
		msg = fmt.Sprintf("Cart synced (%d items)", c.state.TotalItems)
	case OpAddToCart:
		if res.ack.LineID != "" {
			c.lines.set(req.itemID, res.ack.LineID)
		}
		msg = fmt.Sprintf("Added %s to cart", label(req.item))
	case OpUpdateQuantity:
		msg = fmt.Sprintf("Updated %s quantity to %d", label(req.item), req.target)
	case OpRemoveFromCart:
		c.lines.remove(req.itemID)
		msg = fmt.Sprintf("Removed %s from cart", label(req.item))
	case OpClearCart:
		for _, it := range req.undo.items {
			c.lines.remove(it.ID)
		}
		msg = "Cart cleared"
	}

	c.dispatch(req.opID, cart.SyncSucceeded(c.now()))
	c.notifySuccess(req.op, req.opID, req.itemID, msg)
}

// rollback applies the compensating action of a rejected call and records
// the failure. addToCart has no compensating action: the optimistic add
// stays in the cart.
func (c *Controller) rollback(ctx context.Context, req *request, err error) {
	serr := &SyncError{Code: ErrCodeRemoteFailed, Op: req.op, ItemID: req.itemID, Err: err}

	var msg string
	switch req.op {
	case OpSyncCart:
		serr.Code = ErrCodeHydrateFailed
		if c.hydrating == 0 {
			c.dispatch(req.opID, cart.SetLoading(false))
		}
		msg = fmt.Sprintf("Could not load cart: %v", err)
	case OpAddToCart:
		msg = fmt.Sprintf("Could not add %s to cart: %v", label(req.item), err)
	case OpUpdateQuantity:
		if deferred, added := c.deferUndo(req); !deferred {
			c.commit(ctx, req.opID, cart.UpdateQuantity(req.itemID, req.undo.quantity+added))
		}
		msg = fmt.Sprintf("Could not update %s: %v", label(req.item), err)
	case OpRemoveFromCart:
		// The re-add merges with any adds queued behind the removal.
		if deferred, _ := c.deferUndo(req); !deferred {
			c.commit(ctx, req.opID, cart.AddItem(req.undo.item))
		}
		msg = fmt.Sprintf("Could not remove %s: %v", label(req.item), err)
	case OpClearCart:
		for _, it := range req.undo.items {
			c.commit(ctx, req.opID, cart.AddItem(it))
		}
		msg = fmt.Sprintf("Could not clear cart: %v", err)
	}

	c.logger.Warn("remote sync failed",
		"op", req.op,
		"op_id", req.opID,
		"item_id", req.itemID,
		"code", serr.Code,
		"error", err)
	c.dispatch(req.opID, cart.SyncFailed(serr.Error(), c.now()))
	c.notifier.Notify(Notice{Kind: NoticeFailure, Op: req.op, OpID: req.opID, ItemID: req.itemID, Message: msg, Err: serr})
}

// dispatch applies an action to the loop-owned state.
func (c *Controller) dispatch(opID string, a cart.Action) {
	c.state = cart.Reduce(c.state, a)
	if c.observer != nil {
		c.observer(Dispatch{Seq: c.clock.Next(), OpID: opID, Action: a, State: c.state.Clone()})
	}
}

// commit dispatches and mirrors item changes to the snapshot.
func (c *Controller) commit(ctx context.Context, opID string, a cart.Action) {
	c.dispatch(opID, a)
	if a.ChangesItems() {
		c.persist.Write(ctx, c.state)
	}
}

func (c *Controller) notifySuccess(op Operation, opID, itemID, msg string) {
	c.notifier.Notify(Notice{Kind: NoticeSuccess, Op: op, OpID: opID, ItemID: itemID, Message: msg})
}

func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = c.state.Clone()
	c.viewPhase = c.phase()
	c.viewIdent = c.identity
}

func (c *Controller) phase() Phase {
	switch {
	case !c.identity.IsAuthenticated():
		return PhaseAnonymousLocal
	case c.hydrating > 0:
		return PhaseHydrating
	case c.mutating > 0:
		return PhaseMutating
	}
	return PhaseSynced
}

func (c *Controller) releaseFlushers() {
	if c.inflight > 0 || len(c.flushers) == 0 {
		return
	}
	for _, done := range c.flushers {
		done <- nil
	}
	c.flushers = nil
}

func label(it cart.Item) string {
	if it.Name != "" {
		return it.Name
	}
	return it.ID
}
