package bars

import (
	"pricefuse/models"
)

// barRing is a fixed-capacity circular buffer of closed bars. Appends never
// allocate once the buffer is full; the oldest bar is overwritten.
type barRing struct {
	data     []models.Bar
	capacity int
	index    int
	size     int
}

func newBarRing(capacity int) *barRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &barRing{
		data:     make([]models.Bar, capacity),
		capacity: capacity,
	}
}

func (r *barRing) Append(bar models.Bar) {
	r.data[r.index] = bar
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Latest returns up to n most recent bars in chronological order.
func (r *barRing) Latest(n int) []models.Bar {
	if r.size == 0 || n <= 0 {
		return []models.Bar{}
	}
	count := n
	if count > r.size {
		count = r.size
	}
	result := make([]models.Bar, count)
	startIdx := (r.index - count + r.capacity) % r.capacity
	for i := 0; i < count; i++ {
		result[i] = r.data[(startIdx+i)%r.capacity]
	}
	return result
}

// All returns every stored bar, oldest first.
func (r *barRing) All() []models.Bar {
	return r.Latest(r.size)
}

func (r *barRing) Len() int {
	return r.size
}

func (r *barRing) Clear() {
	r.index = 0
	r.size = 0
}

// tradeRing keeps the most recent normalized trades for inspection endpoints.
type tradeRing struct {
	data     []models.Trade
	capacity int
	index    int
	size     int
}

func newTradeRing(capacity int) *tradeRing {
	if capacity <= 0 {
		capacity = 5000
	}
	return &tradeRing{
		data:     make([]models.Trade, capacity),
		capacity: capacity,
	}
}

func (r *tradeRing) Append(trade models.Trade) {
	r.data[r.index] = trade
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

func (r *tradeRing) Latest(n int) []models.Trade {
	if r.size == 0 || n <= 0 {
		return []models.Trade{}
	}
	count := n
	if count > r.size {
		count = r.size
	}
	result := make([]models.Trade, count)
	startIdx := (r.index - count + r.capacity) % r.capacity
	for i := 0; i < count; i++ {
		result[i] = r.data[(startIdx+i)%r.capacity]
	}
	return result
}

func (r *tradeRing) Len() int {
	return r.size
}

func (r *tradeRing) Clear() {
	r.index = 0
	r.size = 0
}
