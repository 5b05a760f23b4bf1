package redis

import "github.com/redis/rueidis"

// NewStoreForTest creates a Redis 8 Store with the provided rueidis client and the default key prefix (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return newStore(c, "", true)
}

// NewValkeyStoreForTest creates a Store without text search support (test-only).
func NewValkeyStoreForTest(c rueidis.Client) *Store {
	return newStore(c, "", false)
}
