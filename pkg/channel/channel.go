// Copyright 2025 OneCore Project
//
// Package channel implements the append-only, per-(channel, owner)
// time-ordered log (spec.md §4.6, component C6). A channel's entries form
// a singly-linked list going backward in time; concurrent owners each
// publish their own ChannelInfo head, and objectstore's VersionMap merge
// reconciles them (spec.md §4.4). Because entries are immutable unversioned
// objects, an out-of-order append (a timestamp older than entries already
// above the insertion point) cannot simply relink an existing node — it
// rewrites the chain from the insertion point back up to the head, since
// each entry's own hash depends on its previous pointer.

package channel

import (
	"fmt"
	"time"

	"github.com/onecore-dev/onecore/pkg/canon"
	"github.com/onecore-dev/onecore/pkg/objectstore"
)

// Channel is a handle on one (channel_id, owner) log.
type Channel struct {
	objects *objectstore.Store
	id      string
	owner   string // "" means the ownerless NONE channel
}

// Open returns a handle for (id, owner). owner is the hex IdHash of the
// owning Person, or "" for the NONE channel. Open does not touch storage;
// the ChannelInfo is created lazily on the first Append.
func Open(objects *objectstore.Store, id string, owner string) *Channel {
	return &Channel{objects: objects, id: id, owner: owner}
}

// AppendResult is the outcome of one Append.
type AppendResult struct {
	EntryHash canon.ObjectHash
	Head      canon.ObjectHash
	Timestamp int64
}

// idHash computes the IdHash of this channel's ChannelInfo, used to look
// up and publish its VersionMap.
func (c *Channel) idHash() (canon.IdHash, error) {
	tmp := canon.NewObject("ChannelInfo", map[string]any{"id": c.id, "owner": c.owner})
	return canon.IdHashOf(tmp, ChannelInfoRecipe)
}

func (c *Channel) currentInfo() (*canon.Object, error) {
	idHash, err := c.idHash()
	if err != nil {
		return nil, err
	}
	o, err := c.objects.GetByID("ChannelInfo", idHash)
	if err != nil {
		if err == objectstore.ErrNoSuchVersion {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

func headHash(info *canon.Object) canon.ObjectHash {
	if info == nil {
		return canon.ObjectHash(zeroHash)
	}
	return canon.ObjectHash(asHash(info.Fields["head"]))
}

func asHash(v any) canon.Hash {
	switch h := v.(type) {
	case canon.Hash:
		return h
	case canon.ObjectHash:
		return canon.Hash(h)
	case canon.IdHash:
		return canon.Hash(h)
	default:
		return canon.Hash{}
	}
}

// chainNode is one ChannelEntry fetched while walking the list, with its
// timestamp and payload hash resolved from its CreationTime wrapper.
type chainNode struct {
	hash        canon.ObjectHash
	dataHash    canon.ObjectHash // the CreationTime this entry wraps
	payloadHash canon.ObjectHash // the CreationTime's own payload pointer
	previous    canon.ObjectHash
	timestamp   int64
}

func (c *Channel) loadNode(hash canon.ObjectHash) (chainNode, error) {
	entryObj, err := c.objects.Get(hash)
	if err != nil {
		return chainNode{}, err
	}
	dataHash := canon.ObjectHash(asHash(entryObj.Fields["data"]))
	previous := canon.ObjectHash(asHash(entryObj.Fields["previous"]))

	creationObj, err := c.objects.Get(dataHash)
	if err != nil {
		return chainNode{}, err
	}
	ts, err := asTimestamp(creationObj.Fields["timestamp"])
	if err != nil {
		return chainNode{}, err
	}
	payloadHash := canon.ObjectHash(asHash(creationObj.Fields["data"]))

	return chainNode{hash: hash, dataHash: dataHash, payloadHash: payloadHash, previous: previous, timestamp: ts}, nil
}

func asTimestamp(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("channel: timestamp field has unexpected type %T", v)
	}
	return int64(f), nil
}

// Append stores payload (which must already be registered, unversioned,
// with the objects store's registry) and links it into the channel at the
// position its timestamp belongs (spec.md §4.6). explicitTimestamp, if
// non-nil, overrides "now".
func (c *Channel) Append(payload *canon.Object, explicitTimestamp *int64) (AppendResult, error) {
	ts := time.Now().Unix()
	if explicitTimestamp != nil {
		ts = *explicitTimestamp
	}

	payloadResult, err := c.objects.StoreUnversioned(payload)
	if err != nil {
		return AppendResult{}, fmt.Errorf("storing payload: %w", err)
	}

	creation := canon.NewObject("CreationTime", map[string]any{
		"timestamp": float64(ts),
		"data":      payloadResult.Hash,
	})
	creationResult, err := c.objects.StoreUnversioned(creation)
	if err != nil {
		return AppendResult{}, fmt.Errorf("storing creation time: %w", err)
	}

	info, err := c.currentInfo()
	if err != nil {
		return AppendResult{}, err
	}
	head := headHash(info)

	// Walk backward from head collecting every node newer than ts; these
	// have to be rebuilt once the new entry is spliced in below them.
	var above []chainNode
	cursor := head
	for cursor != canon.ObjectHash(zeroHash) {
		node, err := c.loadNode(cursor)
		if err != nil {
			return AppendResult{}, fmt.Errorf("walking chain: %w", err)
		}
		if node.timestamp <= ts {
			break
		}
		above = append(above, node)
		cursor = node.previous
	}
	basePrevious := cursor // zeroHash if we walked off the end

	newEntry := canon.NewObject("ChannelEntry", map[string]any{
		"data":     creationResult.Hash,
		"previous": basePrevious,
	})
	newEntryResult, err := c.objects.StoreUnversioned(newEntry)
	if err != nil {
		return AppendResult{}, fmt.Errorf("storing entry: %w", err)
	}

	newHead := newEntryResult.Hash
	for i := len(above) - 1; i >= 0; i-- {
		node := above[i]
		rebuilt := canon.NewObject("ChannelEntry", map[string]any{
			"data":     node.dataHash,
			"previous": newHead,
		})
		rebuiltResult, err := c.objects.StoreUnversioned(rebuilt)
		if err != nil {
			return AppendResult{}, fmt.Errorf("relinking chain: %w", err)
		}
		newHead = rebuiltResult.Hash
	}

	infoObj := canon.NewObject("ChannelInfo", map[string]any{
		"id":    c.id,
		"owner": c.owner,
		"head":  newHead,
	})
	if _, err := c.objects.StoreVersioned(infoObj); err != nil {
		return AppendResult{}, fmt.Errorf("publishing channel head: %w", err)
	}

	return AppendResult{EntryHash: newEntryResult.Hash, Head: newHead, Timestamp: ts}, nil
}

// Head returns the current head hash, or ErrEmptyChannel if nothing has
// been appended yet.
func (c *Channel) Head() (canon.ObjectHash, error) {
	info, err := c.currentInfo()
	if err != nil {
		return canon.ObjectHash{}, err
	}
	h := headHash(info)
	if h == canon.ObjectHash(zeroHash) {
		return canon.ObjectHash{}, ErrEmptyChannel
	}
	return h, nil
}
