package sharding

import "sync"

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

func (r *ShardRouter) GetShard(id int64) int {
	// ids are never negative, but a corrupted one must not index out of range
	shardIndex := id % int64(r.ShardCount)
	if shardIndex < 0 {
		shardIndex = -shardIndex
	}
	return int(shardIndex)
}

// OrderLocks serializes mutations of the same order inside one process. Orders that map to
// the same shard share a mutex.
type OrderLocks struct {
	router *ShardRouter
	shards []sync.Mutex
}

func NewOrderLocks(router *ShardRouter) *OrderLocks {
	return &OrderLocks{
		router: router,
		shards: make([]sync.Mutex, router.ShardCount),
	}
}

// Lock blocks until the shard owning orderID is free and returns its unlock func.
func (l *OrderLocks) Lock(orderID int64) func() {
	mu := &l.shards[l.router.GetShard(orderID)]
	mu.Lock()
	return mu.Unlock
}
