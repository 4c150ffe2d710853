// SPDX-License-Identifier: MIT

package state

import (
	"encoding/json"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/types"
)

// Key prefixes in the snapshot store.
const (
	keyGuild     = "guild/"
	keyReadState = "readstate/"
	keyMessages  = "messages/"
)

// Store persists a state snapshot across restarts so a client can show
// unread markers and recent history before the gateway catches up.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens (or creates) a snapshot store at dir. An empty dir opens
// an in-memory store, which tests use.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("state: open snapshot store: %w", err)
	}
	return &Store{db: db, logger: log.WithComponent("state.store")}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Flush writes the current guilds, read states, and message rings.
// Prior snapshot entries for removed channels or guilds are dropped.
func (s *Store) Flush(st *State) error {
	st.mu.RLock()
	guilds := make(map[string][]byte, len(st.guilds))
	for id, g := range st.guilds {
		data, err := json.Marshal(g)
		if err != nil {
			st.mu.RUnlock()
			return fmt.Errorf("state: encode guild %s: %w", id, err)
		}
		guilds[keyGuild+id.String()] = data
	}
	reads := make(map[string][]byte, len(st.readStates))
	for id, rs := range st.readStates {
		data, err := json.Marshal(rs)
		if err != nil {
			st.mu.RUnlock()
			return fmt.Errorf("state: encode read state %s: %w", id, err)
		}
		reads[keyReadState+id.String()] = data
	}
	msgs := make(map[string][]byte, len(st.messages))
	for cid, r := range st.messages {
		data, err := json.Marshal(r.all())
		if err != nil {
			st.mu.RUnlock()
			return fmt.Errorf("state: encode messages %s: %w", cid, err)
		}
		msgs[keyMessages+cid.String()] = data
	}
	st.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		for key, data := range guilds {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		for key, data := range reads {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		for key, data := range msgs {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("state: flush snapshot: %w", err)
	}
	s.logger.Debug().
		Int("guilds", len(guilds)).
		Int("read_states", len(reads)).
		Int("channels", len(msgs)).
		Msg("snapshot flushed")
	return nil
}

// Load seeds an empty state from the snapshot. Live gateway data
// applied afterwards overwrites it.
func (s *Store) Load(st *State) error {
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			switch {
			case strings.HasPrefix(key, keyGuild):
				var g types.Guild
				if err := json.Unmarshal(data, &g); err != nil {
					return fmt.Errorf("decode %s: %w", key, err)
				}
				st.UpsertGuild(&g)
			case strings.HasPrefix(key, keyReadState):
				var rs types.ReadState
				if err := json.Unmarshal(data, &rs); err != nil {
					return fmt.Errorf("decode %s: %w", key, err)
				}
				st.ApplyReadState(rs)
			case strings.HasPrefix(key, keyMessages):
				var msgs []types.Message
				if err := json.Unmarshal(data, &msgs); err != nil {
					return fmt.Errorf("decode %s: %w", key, err)
				}
				for _, m := range msgs {
					st.AddMessage(m)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("state: load snapshot: %w", err)
	}
	return nil
}
