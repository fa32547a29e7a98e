package entity

import "fmt"

// Batch is a contiguous group of records sharing one IR artifact
type Batch struct {
	Number  int // 1-based
	Records []ReceiptRecord
}

// Partition splits records into ceil(N/capacity) contiguous batches in input order
func Partition(records []ReceiptRecord, capacity int) ([]Batch, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("batch capacity must be positive, got %d", capacity)
	}

	batches := make([]Batch, 0, (len(records)+capacity-1)/capacity)
	for start := 0; start < len(records); start += capacity {
		end := start + capacity
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, Batch{
			Number:  len(batches) + 1,
			Records: records[start:end:end],
		})
	}
	return batches, nil
}

// LineItemCount returns the number of line items across the batch
func (b Batch) LineItemCount() int {
	n := 0
	for _, r := range b.Records {
		n += len(r.LineItems)
	}
	return n
}
