package orchestrator

// shardIndex hashes key with FNV-1a and maps it onto one of n shards, the
// same scheme the teacher pack's consistent-hash load balancers use for
// stable bucket assignment. Every piece of work for one merchant (and thus
// for its one active issue) always lands on the same shard goroutine, which
// is what gives spec.md §5's "serialized per issue id" guarantee.
func shardIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return int(h % uint32(n))
}
