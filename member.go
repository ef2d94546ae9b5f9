package sidemerge

// memberKey identifies a field or method across the two inputs. Name and
// descriptor are separate components so descriptor characters can never
// collide with a separator.
type memberKey struct {
	name string
	desc string
}

// mergeMembers correlates two ordered entry lists by key and returns one
// list in merged key order. Entries present on both sides are emitted from
// the client list untouched; one-sided entries are passed to applySide
// before emission. No entry is duplicated or dropped.
func mergeMembers[T any, K comparable](client, server []T, key func(T) K, applySide func(T, Side)) []T {
	clientByKey := make(map[K]T, len(client))
	clientKeys := make([]K, 0, len(client))
	for _, e := range client {
		k := key(e)
		clientByKey[k] = e
		clientKeys = append(clientKeys, k)
	}

	serverByKey := make(map[K]T, len(server))
	serverKeys := make([]K, 0, len(server))
	for _, e := range server {
		k := key(e)
		serverByKey[k] = e
		serverKeys = append(serverKeys, k)
	}

	merged := MergePreserveOrder(clientKeys, serverKeys)

	out := make([]T, 0, len(merged))
	for _, k := range merged {
		entryClient, onClient := clientByKey[k]
		entryServer, onServer := serverByKey[k]

		switch {
		case onClient && onServer:
			out = append(out, entryClient)
		case onClient:
			applySide(entryClient, SideClient)
			out = append(out, entryClient)
		default:
			applySide(entryServer, SideServer)
			out = append(out, entryServer)
		}
	}
	return out
}
