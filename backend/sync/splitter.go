package sync

import "gomarks/backend"

// DefaultChunkSize is the per-chunk entity limit when none is configured
const DefaultChunkSize = 100

// Split breaks batch into ordered chunks of at most n entities.
//
// A batch that fits is returned as the only chunk, unchanged. Otherwise
// collections and tags go first, so the authority has every referenced
// container before any item arrives; deletions ride on the first chunk.
// Items follow, each together with its links. Links are kept only when
// their tag is in knownTags or is transmitted by this batch; the rest stay
// pending locally and go out on a later cycle. An item whose links alone
// exceed n still travels in one chunk.
func Split(batch *backend.SyncBatch, n int, knownTags map[string]bool) []*backend.SyncBatch {
	if n <= 0 {
		n = DefaultChunkSize
	}
	if batch.Size() <= n {
		return []*backend.SyncBatch{batch}
	}

	known := make(map[string]bool, len(knownTags)+len(batch.Tags))
	for id := range knownTags {
		known[id] = true
	}
	for _, tg := range batch.Tags {
		known[tg.ID] = true
	}

	var chunks []*backend.SyncBatch
	current := &backend.SyncBatch{Deletions: batch.Deletions}
	flushIfFull := func(next int) {
		if current.Size() > 0 && current.Size()+next > n {
			chunks = append(chunks, current)
			current = &backend.SyncBatch{}
		}
	}

	for _, col := range batch.Collections {
		flushIfFull(1)
		current.Collections = append(current.Collections, col)
	}
	for _, tg := range batch.Tags {
		flushIfFull(1)
		current.Tags = append(current.Tags, tg)
	}

	linksByItem := make(map[string][]backend.ItemTag)
	var order []string
	for _, l := range batch.ItemTags {
		if !known[l.TagID] {
			continue
		}
		if _, ok := linksByItem[l.ItemID]; !ok {
			order = append(order, l.ItemID)
		}
		linksByItem[l.ItemID] = append(linksByItem[l.ItemID], l)
	}

	inBatch := make(map[string]bool, len(batch.Items))
	for _, it := range batch.Items {
		inBatch[it.ID] = true
		links := linksByItem[it.ID]
		flushIfFull(1 + len(links))
		current.Items = append(current.Items, it)
		current.ItemTags = append(current.ItemTags, links...)
	}

	// Links of items that are not themselves pending
	for _, itemID := range order {
		if inBatch[itemID] {
			continue
		}
		links := linksByItem[itemID]
		flushIfFull(len(links))
		current.ItemTags = append(current.ItemTags, links...)
	}

	if current.Size() > 0 || current.Deletions.Len() > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
