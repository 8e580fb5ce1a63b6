package matching

import "tradecore/internal/domain"

// ocoPair tracks one OCO group's two order IDs and whether the group has
// already resolved (one leg filled or canceled the other). Ownership lives
// on the MatchingEngine, not on the Order itself (spec §9 design note: a
// LinkID is a separate key, not a pointer between Order values).
type ocoPair struct {
	legA, legB domain.OrderID
	resolved   bool
}

// resolveOCO cancels o's OCO sibling the first time o registers any fill or
// is itself canceled, and is a no-op for every call after the first on a
// given group (spec §4.3: "when either leg fills, even partially, the other
// is canceled atomically").
func (me *MatchingEngine) resolveOCO(o *domain.Order) {
	if !o.Link.Linked {
		return
	}
	pair, ok := me.ocoLinks[o.Link.LinkID]
	if !ok || pair.resolved {
		return
	}
	pair.resolved = true

	sibling := pair.legA
	if sibling == o.ID {
		sibling = pair.legB
	}
	me.cancelByID(sibling, "oco")
}

// cancelByID cancels orderID wherever it currently lives (resting in the
// book or armed in a stop table), unlocking its residual reservation and
// publishing order.canceled. It is a no-op if orderID is not found, which
// happens when the sibling already reached a terminal state through some
// other path.
func (me *MatchingEngine) cancelByID(orderID domain.OrderID, reason string) {
	if o := me.book.Get(orderID); o != nil {
		me.book.Remove(orderID)
		o.Cancel()
		me.unlockResidual(o)
		me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: orderID, Reason: reason})
		return
	}
	if o := me.buyStops.Find(orderID); o != nil {
		me.buyStops.Disarm(o)
		o.Cancel()
		me.unlockResidual(o)
		me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: orderID, Reason: reason})
		return
	}
	if o := me.sellStops.Find(orderID); o != nil {
		me.sellStops.Disarm(o)
		o.Cancel()
		me.unlockResidual(o)
		me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: orderID, Reason: reason})
	}
}
