// Copyright 2025 OneCore Project

package channel

import "github.com/onecore-dev/onecore/pkg/canon"

// ChannelInfoRecipe is the versioned per-(channel, owner) pointer to the
// most recent ChannelEntry (spec.md §4.6). owner holds the hex IdHash of
// the owning Person, or the empty string for the ownerless "NONE" channel.
var ChannelInfoRecipe = canon.Recipe{
	Type:      "ChannelInfo",
	Versioned: true,
	Fields: []canon.FieldRule{
		{Name: "id", Kind: canon.KindString, Identifying: true},
		{Name: "owner", Kind: canon.KindString, Identifying: true},
		{Name: "head", Kind: canon.KindRefObject},
	},
}

// ChannelEntryRecipe is one node of a channel's backward-linked,
// time-ordered list. data points at a CreationTime wrapper, never directly
// at the payload (spec.md §4.6).
var ChannelEntryRecipe = canon.Recipe{
	Type: "ChannelEntry",
	Fields: []canon.FieldRule{
		{Name: "data", Kind: canon.KindRefObject},
		{Name: "previous", Kind: canon.KindRefObject},
	},
}

// CreationTimeRecipe wraps a payload object with the timestamp it was
// appended at.
var CreationTimeRecipe = canon.Recipe{
	Type: "CreationTime",
	Fields: []canon.FieldRule{
		{Name: "timestamp", Kind: canon.KindNumber},
		{Name: "data", Kind: canon.KindRefObject},
	},
}

// Register adds the three channel-log recipes to registry. Call this once
// per registry shared with the objectstore.Store the Channel wraps.
func Register(registry *canon.Registry) {
	registry.Register(ChannelInfoRecipe)
	registry.Register(ChannelEntryRecipe)
	registry.Register(CreationTimeRecipe)
}

// zeroHash is the "previous: NONE" / "no entries yet" sentinel: the
// reference kinds in this recipe table always carry a concrete hash value,
// so absence is represented by the all-zero hash rather than a nil field.
var zeroHash canon.Hash
