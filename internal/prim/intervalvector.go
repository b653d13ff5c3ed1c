package prim

import "sort"

// IntervalItem is anything an IntervalVector can hold: it must know its own
// end address so IntervalValue.Split can partition items at a boundary.
type IntervalItem interface {
	End() uint64
}

// IntervalValue is one half-open interval [Start, End) owning a slice of
// items, grounded on
// original_source/emulator/include/intervalvector.h's IntervalValue<T>.
type IntervalValue[T IntervalItem] struct {
	start, end uint64
	items      []T
}

func NewIntervalValue[T IntervalItem](start, end uint64) *IntervalValue[T] {
	return &IntervalValue[T]{start: start, end: end}
}

func (v *IntervalValue[T]) Start() uint64  { return v.start }
func (v *IntervalValue[T]) End() uint64    { return v.end }
func (v *IntervalValue[T]) Size() int      { return len(v.items) }
func (v *IntervalValue[T]) Add(item T)     { v.items = append(v.items, item) }
func (v *IntervalValue[T]) Items() []T     { return v.items }
func (v *IntervalValue[T]) SetItems(t []T) { v.items = t }

// Split partitions this interval at value: items ending at or before value
// stay here, the rest move to a new right-hand IntervalValue covering
// [value, end). Returns nil if value is not strictly inside (start, end).
func (v *IntervalValue[T]) Split(value uint64) *IntervalValue[T] {
	if value <= v.start || value >= v.end {
		return nil
	}
	var left, right []T
	for _, item := range v.items {
		if item.End() <= value {
			left = append(left, item)
		} else {
			right = append(right, item)
		}
	}
	v.items = left
	rightValue := &IntervalValue[T]{start: value, end: v.end, items: right}
	v.end = value
	return rightValue
}

// Sort orders items by an externally supplied "start" accessor, mirroring
// the original's sort() helper (which compares item->start()).
func (v *IntervalValue[T]) Sort(startOf func(T) uint64) {
	sort.SliceStable(v.items, func(i, j int) bool {
		return startOf(v.items[i]) < startOf(v.items[j])
	})
}

func (v *IntervalValue[T]) ForEach(callback func(T)) {
	for _, item := range v.items {
		callback(item)
	}
}

// IntervalVector is a sorted sequence of non-overlapping intervals.
// Grounded on original_source/emulator/include/intervalvector.h.
type IntervalVector[T IntervalItem] struct {
	values []*IntervalValue[T]
}

func (iv *IntervalVector[T]) Size() int {
	total := 0
	for _, v := range iv.values {
		total += v.Size()
	}
	return total
}

// Reserve creates an empty interval covering [start, end) with no items.
func (iv *IntervalVector[T]) Reserve(start, end uint64) {
	iv.Insert(NewIntervalValue[T](start, end))
}

// Insert places a new interval in sorted position. Panics (verification
// failure in the original) if it overlaps an existing interval.
func (iv *IntervalVector[T]) Insert(value *IntervalValue[T]) {
	if value == nil {
		return
	}
	pos := sort.Search(len(iv.values), func(i int) bool {
		return iv.values[i].start >= value.start
	})
	if pos != len(iv.values) && value.end > iv.values[pos].start {
		panic("prim: IntervalVector insert overlaps existing interval")
	}
	if pos != 0 && iv.values[pos-1].end > value.start {
		panic("prim: IntervalVector insert overlaps existing interval")
	}
	iv.values = append(iv.values, nil)
	copy(iv.values[pos+1:], iv.values[pos:])
	iv.values[pos] = value
}

// Find returns the interval containing value, or nil.
func (iv *IntervalVector[T]) Find(value uint64) *IntervalValue[T] {
	pos := sort.Search(len(iv.values), func(i int) bool {
		return iv.values[i].end >= value
	})
	if pos == len(iv.values) {
		return nil
	}
	return iv.values[pos]
}

// Split splits the interval containing value at value, inserting the new
// right-hand half. No-op if value is not strictly interior to an interval.
func (iv *IntervalVector[T]) Split(value uint64) {
	interval := iv.Find(value)
	if interval == nil {
		return
	}
	right := interval.Split(value)
	if right != nil && right.start < right.end {
		iv.Insert(right)
	}
}

// Remove deletes all intervals wholly within [start, end), splitting the
// boundary intervals first so partial overlaps are preserved outside the
// removed range.
func (iv *IntervalVector[T]) Remove(start, end uint64) {
	iv.Split(start)
	iv.Split(end)
	first := sort.Search(len(iv.values), func(i int) bool {
		return iv.values[i].start >= start
	})
	afterLast := first
	for afterLast < len(iv.values) && iv.values[afterLast].start < end {
		afterLast++
	}
	iv.values = append(iv.values[:first], iv.values[afterLast:]...)
}

// ForEach visits every item across every interval, in interval order.
func (iv *IntervalVector[T]) ForEach(callback func(T)) {
	for _, v := range iv.values {
		v.ForEach(callback)
	}
}

// ForEachInRange visits every item whose owning interval lies within
// [start, end), splitting at both endpoints first. This split-as-a-side-
// effect-of-iteration behavior is inherited from the original and is an
// open question in spec.md §9 rather than a bug: callers that need a pure
// read should copy before iterating.
func (iv *IntervalVector[T]) ForEachInRange(start, end uint64, callback func(T)) {
	iv.Split(start)
	iv.Split(end)
	first := sort.Search(len(iv.values), func(i int) bool {
		return iv.values[i].end >= start
	})
	afterLast := first
	for afterLast < len(iv.values) && iv.values[afterLast].start < end {
		afterLast++
	}
	for _, v := range iv.values[first:afterLast] {
		v.ForEach(callback)
	}
}

// Values exposes the underlying interval list for read-only traversal by
// callers that need interval boundaries, not just items (e.g. the
// disassembly cache locating a section).
func (iv *IntervalVector[T]) Values() []*IntervalValue[T] {
	return iv.values
}
