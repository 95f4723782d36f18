/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides an in-memory cache keyed by strings with LRU eviction policy.
//
// Entries live in a slot arena and are linked into the recency chain by slot indices,
// so lookup, insertion, promotion and eviction are O(1) and allocation-free once the arena is warm.
// The cache is not safe for concurrent use.
package lrucache
