// Package util
//
// This file provides a keyed min-heap for expiry tracking.
//
// The heap combines a binary heap with a hash map so the in-memory engine can
// both find the document that expires next and move or drop a single document
// when it is updated or removed.
//
//   - O(log n) for Push, Pop and priority updates
//   - O(1) for key lookups and existence checks
//   - O(log n) for removal by key
//
// The heap is not thread-safe, callers synchronize externally.
//
// Example usage:
//
//	expiry := NewMapHeap()
//	expiry.AddItem("doc-1", deadline.UnixNano())
//	for {
//	    next, ok := expiry.Peek()
//	    if !ok || next.Priority > now.UnixNano() {
//	        break
//	    }
//	    expiry.RemoveByKey(next.Key)
//	    // drop the document
//	}
package util

import (
	"container/heap"
	"strconv"
)

// Item is an entry in the heap, identified by Key and ordered by Priority
type Item struct {
	Key      string // Unique identifier for the item
	Priority int64  // Priority used for ordering in the heap (lowest first)
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item) String() string {
	return "{Key: " + i.Key + ", Priority: " + strconv.FormatInt(i.Priority, 10) + "}"
}

// MapHeap implements a min priority queue with key-based access
type MapHeap struct {
	items    []*Item          // The actual heap slice
	itemsMap map[string]*Item // Map for O(1) access by key
}

// NewMapHeap creates a new, initialized heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[string]*Item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (mh *MapHeap) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface)
func (mh *MapHeap) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (mh *MapHeap) Push(x interface{}) {
	n := len(mh.items)
	item := x.(*Item)
	item.index = n
	mh.items = append(mh.items, item)
	mh.itemsMap[item.Key] = item
}

// Pop removes and returns the minimum item (part of heap.Interface)
func (mh *MapHeap) Pop() interface{} {
	old := mh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	mh.items = old[:n-1]
	delete(mh.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the queue or updates the priority of an existing one
func (mh *MapHeap) AddItem(key string, priority int64) {
	if item, exists := mh.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(mh, item.index)
		return
	}

	heap.Push(mh, &Item{
		Key:      key,
		Priority: priority,
	})
}

// RemoveByKey removes an item by its key
func (mh *MapHeap) RemoveByKey(key string) (int64, bool) {
	item, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(mh, item.index)
	return item.Priority, true
}

// Peek returns the minimum item without removing it
func (mh *MapHeap) Peek() (*Item, bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// PopUntil removes and returns the keys of all items with a priority <= limit, lowest first
func (mh *MapHeap) PopUntil(limit int64) []string {
	var keys []string
	for len(mh.items) > 0 && mh.items[0].Priority <= limit {
		item := heap.Pop(mh).(*Item)
		keys = append(keys, item.Key)
	}
	return keys
}

// Contains checks if a key exists in the queue
func (mh *MapHeap) Contains(key string) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (mh *MapHeap) GetByKey(key string) (*Item, bool) {
	item, exists := mh.itemsMap[key]
	return item, exists
}
