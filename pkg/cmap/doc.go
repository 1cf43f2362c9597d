// Package cmap provides the sharded concurrent map behind the token index
// of the state store.
//
// Keys are spread over a power-of-two number of shards with murmur3, and
// each shard has its own RWMutex. StoreIfAbsent and DeleteFunc decide and
// act under one shard lock, which lets callers reserve a token or remove
// an entry conditionally without a separate lock.
//
//	m := cmap.New[domain.Token, *slot](cmap.DefaultShards, hashToken)
//	if m.StoreIfAbsent(tok, s) {
//		...
//	}
//	for tok, s := range m.All() {
//		...
//	}
package cmap
