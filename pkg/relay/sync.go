// Copyright 2025 OneCore Project
//
// Sync is the "chum" exchange layered on top of a paired Connection: one
// side asks for a set of hashes, the other streams back the serialized
// object bytes for whichever of those its Selector is willing to share,
// and the requester writes each one into its own object store as it
// arrives (spec.md §4.9, §8 property "sync converges").

package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/onecore-dev/onecore/pkg/canon"
	"github.com/onecore-dev/onecore/pkg/connection"
	"github.com/onecore-dev/onecore/pkg/objectstore"
)

// Selector decides whether target may be shared with the peer this Sync
// is registered for. A nil Selector shares everything requested.
type Selector func(target canon.Hash) bool

// Sync answers and issues "chum" requests against one object store.
type Sync struct {
	objects  *objectstore.Store
	registry *canon.Registry
	selector Selector
}

// NewSync creates a Sync over objects, resolving recipes from registry and
// filtering outgoing shares through selector.
func NewSync(objects *objectstore.Store, registry *canon.Registry, selector Selector) *Sync {
	return &Sync{objects: objects, registry: registry, selector: selector}
}

// serviceName is the Multiplexer service name the chum protocol runs
// under.
const serviceName = "chum"

// RegisterService installs this Sync's responder on mux, so incoming
// "chum" requests from the peer get answered from this store.
func (s *Sync) RegisterService(mux *connection.Multiplexer) error {
	return mux.AddService(serviceName, func(req json.RawMessage, r *connection.Responder) {
		var wanted []string
		if err := decodeHashList(req, &wanted); err != nil {
			r.Error(err)
			return
		}
		for _, hex := range wanted {
			hash, err := canon.ParseHash(hex)
			if err != nil {
				continue
			}
			if s.selector != nil && !s.selector(hash) {
				continue
			}
			o, err := s.objects.Get(canon.ObjectHash(hash))
			if err != nil {
				continue
			}
			recipe, err := s.registry.Recipe(o.Type)
			if err != nil {
				continue
			}
			encoded, err := canon.Serialize(o, recipe)
			if err != nil {
				continue
			}
			if err := r.Stream(base64.StdEncoding.EncodeToString(encoded)); err != nil {
				return
			}
		}
		r.End()
	})
}

// RequestObjects asks the peer for hashes over mux, storing every object
// it streams back unversioned into this Sync's store, and returns however
// many of them arrived (fewer than len(hashes) if the peer's Selector
// withheld some). A streamed object that fails to decode or to store
// unversioned (a versioned type, for one) is skipped and not returned.
func (s *Sync) RequestObjects(mux *connection.Multiplexer, hashes []canon.Hash) ([]*canon.Object, error) {
	hexes := make([]string, len(hashes))
	for i, h := range hashes {
		hexes[i] = h.String()
	}

	it, err := mux.Send(serviceName, hexes)
	if err != nil {
		return nil, fmt.Errorf("requesting objects: %w", err)
	}

	var received []*canon.Object
	for {
		frame, ok := it.Next()
		if !ok {
			if err := it.Err(); err != nil {
				return received, err
			}
			return received, nil
		}
		var encoded64 string
		if err := json.Unmarshal(frame.Data, &encoded64); err != nil {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(encoded64)
		if err != nil {
			continue
		}
		typ, err := canon.PeekType(raw)
		if err != nil {
			continue
		}
		recipe, err := s.registry.Recipe(typ)
		if err != nil {
			continue
		}
		o, err := canon.Deserialize(raw, recipe)
		if err != nil {
			continue
		}
		if _, err := s.objects.StoreUnversioned(o); err != nil {
			continue
		}
		received = append(received, o)
	}
}

func decodeHashList(raw json.RawMessage, out *[]string) error {
	return json.Unmarshal(raw, out)
}
