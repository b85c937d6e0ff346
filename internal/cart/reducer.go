package cart

// Reduce applies a to s and returns the next state. s is not modified.
//
// Item-changing actions rebuild the slice and recompute totals. Bookkeeping
// actions (SET_*, SYNC_*) never touch Items. Unknown kinds return s
// unchanged.
func Reduce(s State, a Action) State {
	switch a.Kind {
	case ActionLoadCart:
		items := make([]Item, 0, len(a.Records))
		for _, rec := range a.Records {
			items = mergeItem(items, Normalize(rec))
		}
		return s.withItems(items)

	case ActionAddItem:
		items := make([]Item, len(s.Items), len(s.Items)+1)
		copy(items, s.Items)
		return s.withItems(mergeItem(items, NormalizeItem(a.Item)))

	case ActionUpdateQuantity:
		i := s.index(a.ID)
		if i < 0 {
			return s
		}
		items := make([]Item, len(s.Items))
		copy(items, s.Items)
		items[i].Quantity = clampQuantity(a.Quantity)
		return s.withItems(items)

	case ActionRemoveItem:
		i := s.index(a.ID)
		if i < 0 {
			return s
		}
		items := make([]Item, 0, len(s.Items)-1)
		items = append(items, s.Items[:i]...)
		items = append(items, s.Items[i+1:]...)
		return s.withItems(items)

	case ActionClearCart:
		return s.withItems([]Item{})

	case ActionSetLoading:
		s.Loading = a.Loading
		return s

	case ActionSetError:
		s.Error = a.Error
		return s

	case ActionSyncSuccess:
		s.SyncStatus = SyncSuccess
		s.LastSyncTime = a.At
		s.Error = ""
		return s

	case ActionSyncFailure:
		s.SyncStatus = SyncError
		s.LastSyncTime = a.At
		s.Error = a.Error
		return s
	}
	return s
}

// mergeItem appends it, or sums its quantity into the existing entry with
// the same id. items must be owned by the caller.
func mergeItem(items []Item, it Item) []Item {
	for i := range items {
		if items[i].ID == it.ID {
			items[i].Quantity += it.Quantity
			return items
		}
	}
	return append(items, it)
}
