package conf

// MergeDefaults merges maps into one, prefixing every key with ns. Later
// maps win. An empty ns keeps the keys as they are.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) M {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	prefix := ""
	if ns != "" {
		prefix = ns + "."
	}

	merged := make(M, size)
	for _, m := range maps {
		for key, val := range m {
			merged[prefix+key] = val
		}
	}

	return merged
}
