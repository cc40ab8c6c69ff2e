package queue

// OrderingStrategy decides how waiting entries are ranked when a queue is
// listed. Strategies provide both the SQL ORDER BY fragment used by the
// Postgres repository and an equivalent in-memory comparison so callers
// holding a slice of entries can sort the same way.
type OrderingStrategy interface {
	Name() string
	OrderBy() string
	Less(a, b *Entry) bool
}

// StrategyFor returns the strategy selected by a queue's ordering rule.
// Unknown rules fall back to FIFO.
func StrategyFor(rule OrderingRule) OrderingStrategy {
	if rule == OrderAcuity {
		return AcuityThenFIFO{}
	}
	return FIFO{}
}

// FIFO ranks entries strictly by arrival position.
type FIFO struct{}

func (FIFO) Name() string    { return string(OrderFIFO) }
func (FIFO) OrderBy() string { return "position ASC" }

func (FIFO) Less(a, b *Entry) bool { return a.Position < b.Position }

// AcuityThenFIFO ranks higher-acuity entries first; entries without an acuity
// score sort after all scored entries, and ties break by arrival position.
type AcuityThenFIFO struct{}

func (AcuityThenFIFO) Name() string    { return string(OrderAcuity) }
func (AcuityThenFIFO) OrderBy() string { return "acuity DESC NULLS LAST, position ASC" }

func (AcuityThenFIFO) Less(a, b *Entry) bool {
	av, bv := -1, -1
	if a.Acuity != nil {
		av = *a.Acuity
	}
	if b.Acuity != nil {
		bv = *b.Acuity
	}
	if av != bv {
		return av > bv
	}
	return a.Position < b.Position
}
