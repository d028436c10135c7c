// Copyright 2025 OneCore Project

package channel

import "github.com/onecore-dev/onecore/pkg/canon"

// Query selects a subset of a channel's entries for Iterate, per spec.md
// §4.6. All fields are optional; a zero Query yields every entry,
// newest-first.
type Query struct {
	From     *int64
	To       *int64
	Count    *int
	Types    []string
	ID       string // hex ObjectHash of one specific entry
	OmitData bool
}

// EntryView is one entry as returned by Iterate.
type EntryView struct {
	EntryHash canon.ObjectHash
	Timestamp int64
	Type      string
	Data      *canon.Object // nil when Query.OmitData is set
}

// Iterate walks the channel from its head backward (newest-first),
// applying q, and returns the matching entries.
func (c *Channel) Iterate(q Query) ([]EntryView, error) {
	info, err := c.currentInfo()
	if err != nil {
		return nil, err
	}
	head := headHash(info)

	var out []EntryView
	cursor := head
	for cursor != canon.ObjectHash(zeroHash) {
		node, err := c.loadNode(cursor)
		if err != nil {
			return nil, err
		}

		if q.To != nil && node.timestamp > *q.To {
			cursor = node.previous
			continue
		}
		// Entries never increase in timestamp walking backward, so once
		// we pass below From there is nothing further to find.
		if q.From != nil && node.timestamp < *q.From {
			break
		}
		if q.ID != "" && node.hash.String() != q.ID {
			cursor = node.previous
			continue
		}

		payloadObj, err := c.objects.Get(node.payloadHash)
		if err != nil {
			return nil, err
		}
		if len(q.Types) > 0 && !containsString(q.Types, payloadObj.Type) {
			cursor = node.previous
			continue
		}

		view := EntryView{EntryHash: node.hash, Timestamp: node.timestamp, Type: payloadObj.Type}
		if !q.OmitData {
			view.Data = payloadObj
		}
		out = append(out, view)

		if q.Count != nil && len(out) >= *q.Count {
			break
		}
		cursor = node.previous
	}
	return out, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
