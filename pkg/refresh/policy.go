// Package refresh decides which derived data must be recomputed when an
// analysis is triggered again.
package refresh

import (
	"slices"
	"strings"
)

// InvocationReason is the classified cause of an analysis request.
type InvocationReason string

// Known invocation reasons.
const (
	ReasonRefresh        InvocationReason = "refresh"
	ReasonHide           InvocationReason = "hide"
	ReasonUnhide         InvocationReason = "unhide"
	ReasonOpen           InvocationReason = "open"
	ReasonGroupAuthors   InvocationReason = "groupAuthors"
	ReasonRerollColors   InvocationReason = "rerollColors"
	ReasonTimeRangeStart InvocationReason = "timeRangeStart"
	ReasonTimeRangeEnd   InvocationReason = "timeRangeEnd"
	ReasonUnknown        InvocationReason = "unknown"
)

// DataItem is a named unit of derived output tracked for freshness.
type DataItem string

// Tracked data items.
const (
	// ItemCache is the parsed commit history read from git.
	ItemCache DataItem = "cache"
	// ItemTree is the snapshot tree hydrated by the history walk.
	ItemTree DataItem = "tree"
	// ItemHiddenFiles is the set of hidden paths removed from the output.
	ItemHiddenFiles DataItem = "hiddenFiles"
	// ItemAuthorUnions is the alias union applied to the output.
	ItemAuthorUnions DataItem = "authorUnions"
	// ItemTimeRange is the analyzed commit window.
	ItemTimeRange DataItem = "timeRange"
	// ItemColorSeed is the seed of the rendering palette.
	ItemColorSeed DataItem = "colorSeed"
	// ItemAuthorColors is the author to colour assignment.
	ItemAuthorColors DataItem = "authorColors"
	// ItemMetrics are the per-blob metrics derived for rendering.
	ItemMetrics DataItem = "metrics"
)

// AllItems lists every data item.
var AllItems = []DataItem{
	ItemCache, ItemTree, ItemHiddenFiles, ItemAuthorUnions,
	ItemTimeRange, ItemColorSeed, ItemAuthorColors, ItemMetrics,
}

// Reasons lists every invocation reason.
var Reasons = []InvocationReason{
	ReasonRefresh, ReasonHide, ReasonUnhide, ReasonOpen, ReasonGroupAuthors,
	ReasonRerollColors, ReasonTimeRangeStart, ReasonTimeRangeEnd, ReasonUnknown,
}

var policy = map[InvocationReason][]DataItem{
	ReasonRefresh:        AllItems,
	ReasonHide:           {ItemHiddenFiles, ItemMetrics},
	ReasonUnhide:         {ItemHiddenFiles, ItemMetrics},
	ReasonOpen:           {},
	ReasonGroupAuthors:   {ItemAuthorUnions, ItemAuthorColors, ItemMetrics},
	ReasonRerollColors:   {ItemColorSeed, ItemAuthorColors},
	ReasonTimeRangeStart: {ItemTimeRange, ItemTree, ItemMetrics},
	ReasonTimeRangeEnd:   {ItemTimeRange, ItemTree, ItemMetrics},
	ReasonUnknown: {
		ItemCache, ItemTree, ItemHiddenFiles, ItemAuthorUnions,
		ItemTimeRange, ItemAuthorColors, ItemMetrics,
	},
}

// ParseReason maps a reason string to an InvocationReason, case-insensitively.
// Unrecognised strings yield ReasonUnknown.
func ParseReason(s string) InvocationReason {
	for _, reason := range Reasons {
		if strings.EqualFold(string(reason), strings.TrimSpace(s)) {
			return reason
		}
	}

	return ReasonUnknown
}

// ShouldUpdate reports whether item must be recomputed for reason.
func ShouldUpdate(reason InvocationReason, item DataItem) bool {
	return slices.Contains(itemsFor(reason), item)
}

// ItemsToUpdate returns the stale items for reason.
func ItemsToUpdate(reason InvocationReason) Set {
	set := Set{}
	for _, item := range itemsFor(reason) {
		set[item] = struct{}{}
	}

	return set
}

func itemsFor(reason InvocationReason) []DataItem {
	items, ok := policy[reason]
	if !ok {
		return policy[ReasonUnknown]
	}

	return items
}

// Set is a set of data items.
type Set map[DataItem]struct{}

// Has reports whether item is in the set.
func (s Set) Has(item DataItem) bool {
	_, ok := s[item]

	return ok
}

// Any reports whether at least one of items is in the set.
func (s Set) Any(items ...DataItem) bool {
	return slices.ContainsFunc(items, s.Has)
}

// Add inserts items into the set.
func (s Set) Add(items ...DataItem) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

// Sorted returns the items in AllItems order.
func (s Set) Sorted() []DataItem {
	out := make([]DataItem, 0, len(s))

	for _, item := range AllItems {
		if s.Has(item) {
			out = append(out, item)
		}
	}

	return out
}
