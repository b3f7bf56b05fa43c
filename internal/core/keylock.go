package core

import (
	"hash/fnv"
	"sync"
)

const keyLockShards = 64

// KeyLock serializes work per key while unrelated keys proceed concurrently.
// Keys hash onto a fixed set of mutexes, so two keys may occasionally share one.
type KeyLock struct {
	shards [keyLockShards]sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyLock) Lock(key string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.shards[h.Sum32()%keyLockShards]
	m.Lock()
	return m.Unlock
}
