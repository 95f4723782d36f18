/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package replay runs declarative scenarios (sequences of set/get/count/keys operations with expectations)
// against lrucache.LRUCache and reports every mismatch.
package replay
