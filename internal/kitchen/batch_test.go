package kitchen

import (
	"testing"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
)

func sentAt(minute int) *time.Time {
	t := time.Date(2026, 2, 1, 20, minute, 0, 0, time.UTC)
	return &t
}

func numbers(batches []Batch) []int {
	out := make([]int, 0, len(batches))
	for _, b := range batches {
		out = append(out, b.Number)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSort(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{name: "pendingFirstThenDescending", in: []int{0, 3, 1, 2}, want: []int{0, 3, 2, 1}},
		{name: "pendingLast", in: []int{1, 2, 0}, want: []int{0, 2, 1}},
		{name: "onlyPending", in: []int{0}, want: []int{0}},
		{name: "empty", in: nil, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := make([]Batch, 0, len(tt.in))
			for _, n := range tt.in {
				batches = append(batches, Batch{Number: n})
			}
			Sort(batches)
			if got := numbers(batches); !equalInts(got, tt.want) {
				t.Errorf("Sort(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDerivePendingBySetDifference(t *testing.T) {
	history := []backend.KitchenBatch{
		{Number: 1, SentAt: sentAt(1), Items: []backend.BatchItem{{ItemID: "a", ProductName: "Empanada", Quantity: 2}}},
		{Number: 2, SentAt: sentAt(5), Items: []backend.BatchItem{{ItemID: "b", ProductName: "Flan", Quantity: 1}}},
	}
	order := &backend.Order{
		ID:         "o-1",
		WaiterName: "Ana",
		Items: []backend.LineItem{
			{ID: "a", ProductName: "Empanada", Quantity: 2},
			{ID: "b", ProductName: "Flan", Quantity: 1},
			{ID: "c", ProductName: "Mate", Quantity: 3, Notes: "hot"},
		},
	}

	batches := Derive(history, order)

	if got := numbers(batches); !equalInts(got, []int{0, 2, 1}) {
		t.Fatalf("Derive() numbers = %v, want [0 2 1]", got)
	}
	pending := batches[0]
	if len(pending.Items) != 1 || pending.Items[0].ItemID != "c" || pending.Items[0].Quantity != 3 {
		t.Errorf("pending items = %+v, want c x3", pending.Items)
	}
	if pending.SentAt != nil {
		t.Error("pending batch has a send time")
	}
	if pending.WaiterName != "Ana" {
		t.Errorf("pending WaiterName = %q, want Ana", pending.WaiterName)
	}
}

func TestDeriveBackendPendingWins(t *testing.T) {
	history := []backend.KitchenBatch{
		{Number: 0, SentAt: sentAt(9), Items: []backend.BatchItem{{ItemID: "x"}}},
		{Number: 0, Items: []backend.BatchItem{{ItemID: "y"}}},
		{Number: 1, SentAt: sentAt(1), Items: []backend.BatchItem{{ItemID: "a"}}},
	}
	order := &backend.Order{Items: []backend.LineItem{{ID: "a"}, {ID: "z"}}}

	batches := Derive(history, order)

	if got := numbers(batches); !equalInts(got, []int{0, 1}) {
		t.Fatalf("Derive() numbers = %v, want exactly one pending batch", got)
	}
	if batches[0].Items[0].ItemID != "x" {
		t.Errorf("pending = %+v, want the first backend pending batch", batches[0])
	}
	if batches[0].SentAt != nil {
		t.Error("pending batch kept a send time")
	}
}

func TestDeriveWithoutSnapshot(t *testing.T) {
	batches := Derive([]backend.KitchenBatch{{Number: 1, Items: []backend.BatchItem{{ItemID: "a"}}}}, nil)

	if got := numbers(batches); !equalInts(got, []int{0, 1}) {
		t.Fatalf("Derive() numbers = %v, want [0 1]", got)
	}
	if !batches[0].Empty() {
		t.Error("pending batch without snapshot should be empty")
	}
}

func TestDeriveEmptyOrder(t *testing.T) {
	batches := Derive(nil, &backend.Order{})

	if len(batches) != 1 || !batches[0].Pending() || !batches[0].Empty() {
		t.Errorf("Derive() = %+v, want a single empty pending batch", batches)
	}
}

func TestDeriveKeepsEmptiedConfirmedBatch(t *testing.T) {
	history := []backend.KitchenBatch{{Number: 1, SentAt: sentAt(1), Items: []backend.BatchItem{{ItemID: "gone"}}}}

	batches := Derive(history, &backend.Order{})

	if got := numbers(batches); !equalInts(got, []int{0, 1}) {
		t.Errorf("Derive() numbers = %v, want confirmed batch kept", got)
	}
}
