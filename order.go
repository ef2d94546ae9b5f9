package sidemerge

// MergePreserveOrder returns one ordered sequence containing the union of
// two duplicate-free key sequences. Keys present in both inputs act as
// anchors; keys unique to one input are interleaved immediately before the
// next anchor they precede in their own sequence. The subsequence of the
// result restricted to client keys equals the client sequence, and likewise
// for the server sequence. The result is deterministic for fixed inputs.
func MergePreserveOrder[K comparable](client, server []K) []K {
	inClient := make(map[K]struct{}, len(client))
	for _, k := range client {
		inClient[k] = struct{}{}
	}
	inServer := make(map[K]struct{}, len(server))
	for _, k := range server {
		inServer[k] = struct{}{}
	}

	out := make([]K, 0, len(client)+len(server))
	emitted := make(map[K]struct{}, len(client)+len(server))
	emit := func(k K) {
		if _, dup := emitted[k]; dup {
			return
		}
		emitted[k] = struct{}{}
		out = append(out, k)
	}

	i, j := 0, 0
	for i < len(client) || j < len(server) {
		// Both cursors on the same shared anchor.
		for i < len(client) && j < len(server) && client[i] == server[j] {
			emit(client[i])
			i++
			j++
		}

		progressed := false
		for i < len(client) {
			if _, shared := inServer[client[i]]; shared {
				break
			}
			emit(client[i])
			i++
			progressed = true
		}
		for j < len(server) {
			if _, shared := inClient[server[j]]; shared {
				break
			}
			emit(server[j])
			j++
			progressed = true
		}

		if !progressed && (i < len(client) || j < len(server)) {
			// Crossed anchors: both cursors sit on keys the other side also
			// contains, but not the same key. Both orders cannot be honored;
			// client order wins.
			if i < len(client) {
				emit(client[i])
				i++
			} else {
				emit(server[j])
				j++
			}
		}
	}

	return out
}
