package engine

import (
	"context"
	"errors"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/remote"
)

var errNoRemote = errors.New("no remote cart service configured")

// request is one remote call issued by the loop.
type request struct {
	op     Operation
	opID   string
	itemID string    // empty for cart-wide calls
	item   cart.Item // the item as it was when the call was issued
	target int       // requested quantity, for messages
	undo   undo
	epoch  uint64

	// call performs the remote request. lineID is the remote line of itemID,
	// resolved when the call starts.
	call func(ctx context.Context, lineID string) (result, error)
}

// undo is the state captured at dispatch that a rejected call restores.
type undo struct {
	quantity int         // updateQuantity
	item     cart.Item   // removeFromCart
	items    []cart.Item // clearCart
}

type result struct {
	ack     remote.Ack
	records []cart.Record
}

// completion is posted back to the loop when a call returns.
type completion struct {
	req    *request
	result result
	err    error
}

// launch accepts a request under the current epoch. With item
// serialization on, a request for an item that already has a call in
// flight waits for that call to complete.
func (c *Controller) launch(req *request) {
	req.epoch = c.epoch
	c.inflight++
	if req.op == OpSyncCart {
		c.hydrating++
	} else {
		c.mutating++
	}

	if c.serialize && req.itemID != "" {
		q := c.itemQueues[req.itemID]
		c.itemQueues[req.itemID] = append(q, req)
		if len(q) > 0 {
			c.logger.Debug("remote call queued behind in-flight call",
				"op", req.op, "op_id", req.opID, "item_id", req.itemID, "position", len(q))
			return
		}
	}
	c.start(req)
}

// start runs the call in its own goroutine. The completion is enqueued
// whatever the outcome; if the loop has stopped it is dropped.
func (c *Controller) start(req *request) {
	lineID := ""
	if req.itemID != "" {
		lineID = c.resolveLine(req)
	}
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.Debug("remote call started", "op", req.op, "op_id", req.opID, "item_id", req.itemID, "line_id", lineID)

	go func() {
		var (
			res result
			err error
		)
		if c.remote == nil {
			err = errNoRemote
		} else {
			res, err = req.call(ctx, lineID)
		}
		c.queue.Enqueue(event{kind: evCompletion, completion: &completion{req: req, result: res, err: err}})
	}()
}

// advance starts the next queued call for req's item.
func (c *Controller) advance(req *request) {
	if !c.serialize || req.itemID == "" {
		return
	}
	q := c.itemQueues[req.itemID]
	if len(q) == 0 || q[0] != req {
		return
	}
	q = q[1:]
	if len(q) == 0 {
		delete(c.itemQueues, req.itemID)
		return
	}
	c.itemQueues[req.itemID] = q
	c.start(q[0])
}

// deferUndo hands a failed call's last accepted quantity to the next
// queued update or remove of the same item instead of compensating now.
// That call supersedes the optimistic value the failed call would restore,
// and if it fails as well it restores what the remote service holds. Queued
// adds before it are counted into the handed-over quantity since they merge
// into the same remote line. When no such call is queued, deferUndo reports
// the quantity those adds contribute so the caller can compensate now.
func (c *Controller) deferUndo(req *request) (deferred bool, added int) {
	if !c.serialize {
		return false, 0
	}
	q := c.itemQueues[req.itemID]
	if len(q) < 2 || q[0] != req {
		return false, 0
	}

	accepted := req.undo.quantity
	if req.op == OpRemoveFromCart {
		accepted = req.undo.item.Quantity
	}
	for _, next := range q[1:] {
		switch next.op {
		case OpAddToCart:
			added += next.target
			continue
		case OpUpdateQuantity:
			next.undo.quantity = accepted + added
		case OpRemoveFromCart:
			next.undo.item.Quantity = accepted + added
		}
		c.logger.Debug("rollback deferred to queued call",
			"op", req.op, "op_id", req.opID, "item_id", req.itemID,
			"next_op", next.op, "next_op_id", next.opID, "quantity", accepted+added)
		return true, 0
	}
	return false, added
}

// dropQueued discards calls that were queued but never started. Calls
// already in flight complete normally and are discarded as stale.
func (c *Controller) dropQueued() {
	for id, q := range c.itemQueues {
		if n := len(q) - 1; n > 0 {
			c.inflight -= n
			c.logger.Debug("dropping queued remote calls", "item_id", id, "count", n)
		}
	}
	c.itemQueues = make(map[string][]*request)
}

// resolveLine returns the remote line id for req's item: the id the
// service acknowledged, else an id carried by the item's origin record,
// else the item id itself.
func (c *Controller) resolveLine(req *request) string {
	if id, ok := c.lines[req.itemID]; ok {
		return id
	}
	it, ok := c.state.Find(req.itemID)
	if !ok {
		it = req.item
	}
	if id := it.OriginString("cartItemId", "lineId", "_id"); id != "" {
		return id
	}
	return req.itemID
}

// itemRef is the identifier the remote service knows a catalog item by.
func itemRef(it cart.Item) string {
	if ref := it.OriginString("productId", "product_id"); ref != "" {
		return ref
	}
	return it.ID
}

// lineIndex maps item ids to remote line ids.
type lineIndex map[string]string

func (l lineIndex) set(itemID, lineID string) { l[itemID] = lineID }
func (l lineIndex) remove(itemID string)      { delete(l, itemID) }

func (l lineIndex) reset() {
	for k := range l {
		delete(l, k)
	}
}

// rebuild indexes the line ids carried by hydrated items.
func (l lineIndex) rebuild(items []cart.Item) {
	l.reset()
	for _, it := range items {
		if id := it.OriginString("cartItemId", "lineId"); id != "" {
			l[it.ID] = id
		}
	}
}
