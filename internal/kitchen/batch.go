package kitchen

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
)

// PendingBatch is the number of the batch holding undispatched items.
const PendingBatch = 0

// Batch is a group of line items sharing a dispatch. The pending batch has
// number zero and no send time.
type Batch struct {
	Number     int                 `json:"batch_number"`
	SentAt     *time.Time          `json:"sent_at,omitempty"`
	Items      []backend.BatchItem `json:"items"`
	WaiterID   string              `json:"waiter_id,omitempty"`
	WaiterName string              `json:"waiter_name,omitempty"`
}

func (b Batch) Pending() bool {
	return b.Number == PendingBatch
}

func (b Batch) Empty() bool {
	return len(b.Items) == 0
}

func fromBackend(kb backend.KitchenBatch) Batch {
	return Batch{
		Number:     kb.Number,
		SentAt:     kb.SentAt,
		Items:      append([]backend.BatchItem(nil), kb.Items...),
		WaiterID:   kb.WaiterID,
		WaiterName: kb.WaiterName,
	}
}

// Derive builds the sorted batch list for an order. A pending batch
// supplied by the backend wins. Otherwise it is computed as the order's
// items that appear in no confirmed batch. Without an order snapshot the
// pending batch is empty.
func Derive(history []backend.KitchenBatch, order *backend.Order) []Batch {
	var out []Batch
	var pending *Batch
	confirmed := make(map[string]bool)

	for _, kb := range history {
		if kb.Number == PendingBatch {
			if pending == nil {
				b := fromBackend(kb)
				b.SentAt = nil
				pending = &b
			}
			continue
		}
		for _, item := range kb.Items {
			confirmed[item.ItemID] = true
		}
		out = append(out, fromBackend(kb))
	}

	if pending == nil {
		b := Batch{Number: PendingBatch}
		if order != nil {
			b.WaiterID = order.WaiterID
			b.WaiterName = order.WaiterName
			for _, item := range order.Items {
				if confirmed[item.ID] {
					continue
				}
				b.Items = append(b.Items, backend.BatchItem{
					ItemID:      item.ID,
					ProductName: item.ProductName,
					Quantity:    item.Quantity,
					Notes:       item.Notes,
				})
			}
		}
		pending = &b
	}

	out = append(out, *pending)
	Sort(out)
	return out
}

// Sort orders batches pending first, then by descending number.
func Sort(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if a.Pending() != b.Pending() {
			return a.Pending()
		}
		return a.Number > b.Number
	})
}

// fingerprint identifies the immutable content of a confirmed batch.
func fingerprint(b Batch) string {
	var sb strings.Builder
	if b.SentAt != nil {
		sb.WriteString(b.SentAt.UTC().Format(time.RFC3339Nano))
	}
	sb.WriteString("|" + b.WaiterID)
	for _, item := range b.Items {
		fmt.Fprintf(&sb, "|%s:%s:%d:%s", item.ItemID, item.ProductName, item.Quantity, item.Notes)
	}
	return sb.String()
}
