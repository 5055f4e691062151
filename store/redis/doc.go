// Package redis provides a Redis-backed checkpoint store.
//
// Each checkpoint is stored as a JSON string under "<prefix>checkpoint:<id>" and
// its id is added to the set "<prefix>thread:<thread>:checkpoints", which List
// reads back. Writes go through a MULTI/EXEC pipeline so the value and its index
// entry land together. An optional TTL expires both.
//
//	s := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr:   "localhost:6379",
//		Prefix: "fabflow:",
//		TTL:    24 * time.Hour,
//	})
package redis
