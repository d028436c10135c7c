// Copyright 2025 OneCore Project
//
// A VersionMap is an append-only, fixed-width-line file recording every
// version ever written for one identifying id: each line is a monotone
// timestamp, the ObjectHash of that version's data, and the ObjectHash of
// the VersionNode wrapper materialized alongside it (spec.md §6). Fixed
// width means a reader never needs to scan for delimiters to find the last
// line, and two peers' maps merge by set union over parsed lines rather
// than by any text-level patching.

package objectstore

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/onecore-dev/onecore/pkg/canon"
)

const (
	timestampWidth = 16
	hashWidth      = 64
	// entryWidth is the byte length of one VersionMap line, including the
	// trailing newline: the 16-digit timestamp, a '.', the 64-hex data
	// hash, a '.', the 64-hex metadata hash, and '\n'.
	entryWidth = timestampWidth + 1 + hashWidth + 1 + hashWidth + 1
)

// VersionEntry is one line of a VersionMap.
type VersionEntry struct {
	Timestamp int64
	DataHash  canon.ObjectHash
	MetaHash  canon.ObjectHash
}

func encodeEntry(e VersionEntry) []byte {
	return []byte(fmt.Sprintf("%0*d.%s.%s\n", timestampWidth, e.Timestamp, e.DataHash.String(), e.MetaHash.String()))
}

func decodeEntries(data []byte) ([]VersionEntry, error) {
	if len(data)%entryWidth != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrCorruptVersionMap, len(data), entryWidth)
	}
	out := make([]VersionEntry, 0, len(data)/entryWidth)
	for off := 0; off < len(data); off += entryWidth {
		line := data[off : off+entryWidth]
		if line[timestampWidth] != '.' || line[timestampWidth+1+hashWidth] != '.' || line[entryWidth-1] != '\n' {
			return nil, fmt.Errorf("%w: malformed line", ErrCorruptVersionMap)
		}
		ts, err := strconv.ParseInt(string(line[:timestampWidth]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptVersionMap, err)
		}
		dataHash, err := canon.ParseHash(string(line[timestampWidth+1 : timestampWidth+1+hashWidth]))
		if err != nil {
			return nil, err
		}
		metaHash, err := canon.ParseHash(string(line[timestampWidth+1+hashWidth+1 : entryWidth-1]))
		if err != nil {
			return nil, err
		}
		out = append(out, VersionEntry{
			Timestamp: ts,
			DataHash:  canon.ObjectHash(dataHash),
			MetaHash:  canon.ObjectHash(metaHash),
		})
	}
	return out, nil
}

// latest returns the entry with the greatest timestamp, breaking ties by
// the lexicographically greatest DataHash so that two peers who each
// appended a version at the same wall-clock second converge on the same
// winner without coordination (spec.md §6).
func latest(entries []VersionEntry) (VersionEntry, bool) {
	if len(entries) == 0 {
		return VersionEntry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Timestamp > best.Timestamp || (e.Timestamp == best.Timestamp && best.DataHash.Less(e.DataHash)) {
			best = e
		}
	}
	return best, true
}

// merge unions two decoded entry sets, deduplicating identical lines and
// sorting by timestamp (then DataHash) so that replaying a merge from
// either direction produces the same result — the CRDT property a
// VersionMap needs to synchronize safely between peers (spec.md §6).
func merge(a, b []VersionEntry) []VersionEntry {
	seen := make(map[VersionEntry]bool, len(a)+len(b))
	out := make([]VersionEntry, 0, len(a)+len(b))
	for _, e := range a {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, e := range b {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].DataHash.Less(out[j].DataHash)
	})
	return out
}

func versionMapFilename(typ string, idHash canon.IdHash) string {
	return "versionmap/" + typ + "/" + idHash.String()
}
