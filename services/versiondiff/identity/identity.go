// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity maintains the permanent identity directory stored inside
// a document: which user each writing client belongs to, and which user's
// session deleted which operations.
//
// The directory lives under an auxiliary root map, by default "users":
//
//	users[<user id>] = Map{
//	    "ids": Array<client id>,            // clients that wrote as the user
//	    "ds":  Array<Binary delete set>,    // deletions made by the user
//	}
//
// Entries are only ever appended, so the directory survives every session
// that wrote to the document.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/AleutianAI/trackchanges/pkg/logging"
	"github.com/AleutianAI/trackchanges/services/versiondiff/ydoc"
)

// DefaultRoot is the name of the root map holding the directory.
const DefaultRoot = "users"

const (
	keyIDs = "ids"
	keyDS  = "ds"
)

var (
	// ErrInvalidUser is returned for an empty user id.
	ErrInvalidUser = errors.New("invalid user id")

	// ErrMalformedEntry is returned when an existing user entry lacks one
	// of its arrays.
	ErrMalformedEntry = errors.New("malformed user entry")
)

// Register records that client writes on behalf of user. Registering the
// same pair twice is a no-op.
func Register(tx *ydoc.Transaction, root, user string, client uint64) error {
	entry, err := userEntry(tx, root, user)
	if err != nil {
		return err
	}
	ids, err := entryArray(entry, keyIDs)
	if err != nil {
		return fmt.Errorf("register client %d for %q: %w", client, user, err)
	}
	for _, v := range ids.Values() {
		if c, ok := parseClient(v); ok && c == client {
			return nil
		}
	}
	if err := ids.Push(tx, client); err != nil {
		return fmt.Errorf("register client %d for %q: %w", client, user, err)
	}
	return nil
}

// RecordDeletions appends ds to the deletions made by user. Empty sets are
// not recorded.
func RecordDeletions(tx *ydoc.Transaction, root, user string, ds *ydoc.DeleteSet) error {
	if ds == nil || ds.IsEmpty() {
		return nil
	}
	entry, err := userEntry(tx, root, user)
	if err != nil {
		return err
	}
	arr, err := entryArray(entry, keyDS)
	if err != nil {
		return fmt.Errorf("record deletions for %q: %w", user, err)
	}
	if err := arr.PushBinary(tx, ds.Encode()); err != nil {
		return fmt.Errorf("record deletions for %q: %w", user, err)
	}
	return nil
}

// TrackOption configures Track.
type TrackOption func(*tracker)

// WithLogger sets the logger for deletions that could not be recorded.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) TrackOption {
	return func(t *tracker) { t.logger = logger }
}

type tracker struct {
	logger *slog.Logger
}

// Track registers the document's client id for user and records the
// deletions of every later transaction.
//
// Description:
//
//	Deletions are recorded by an after-transaction hook. A deletion set
//	that cannot be written is logged at WARN; the transaction itself is
//	not affected, but its deletions will not be attributed to user.
//
// Outputs:
//
//	[]byte - The update carrying the registration.
//	error - Non-nil if the registration could not be written.
func Track(doc *ydoc.Doc, root, user string, opts ...TrackOption) ([]byte, error) {
	t := &tracker{}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrDefault(t.logger)

	update, err := doc.Transact(func(tx *ydoc.Transaction) error {
		return Register(tx, root, user, doc.ClientID())
	})
	if err != nil {
		return nil, err
	}
	doc.OnAfterTransaction(func(tx *ydoc.Transaction) {
		ds := tx.DeleteSet()
		if err := RecordDeletions(tx, root, user, ds); err != nil {
			t.logger.Warn("deletions not recorded",
				slog.String("user", user),
				slog.Uint64("client", doc.ClientID()),
				slog.Int("clients", len(ds.Clients())),
				slog.String("error", err.Error()),
			)
		}
	})
	return update, nil
}

// userEntry returns the user's map, creating it (with empty arrays) if needed.
func userEntry(tx *ydoc.Transaction, root, user string) (*ydoc.Type, error) {
	if user == "" {
		return nil, ErrInvalidUser
	}
	users := tx.Doc().Map(root)
	if v, ok := users.Get(user); ok {
		if entry, ok := v.(*ydoc.Type); ok {
			return entry, nil
		}
	}
	entry, err := users.SetType(tx, user, ydoc.TypeMap)
	if err != nil {
		return nil, fmt.Errorf("create entry for %q: %w", user, err)
	}
	for _, key := range []string{keyIDs, keyDS} {
		if _, err := entry.SetType(tx, key, ydoc.TypeArray); err != nil {
			return nil, fmt.Errorf("create %s for %q: %w", key, user, err)
		}
	}
	return entry, nil
}

func entryArray(entry *ydoc.Type, key string) (*ydoc.Type, error) {
	v, _ := entry.Get(key)
	arr, ok := v.(*ydoc.Type)
	if !ok || arr.Kind() != ydoc.TypeArray {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedEntry, key)
	}
	return arr, nil
}

// parseClient reads a client id stored as a JSON number.
func parseClient(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		c, err := strconv.ParseUint(n.String(), 10, 64)
		return c, err == nil
	case uint64:
		return n, true
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, false
		}
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	default:
		return 0, false
	}
}

type userDeletions struct {
	user string
	ds   *ydoc.DeleteSet
}

// Directory is a read-only view of the identity directory of one replica.
type Directory struct {
	users     []string
	clients   map[uint64]string
	deletions []userDeletions
}

// Load reads the directory under root. Entries that do not have the
// expected shape are skipped. If a client is claimed by several users the
// first in ascending user order wins.
func Load(doc *ydoc.Doc, root string) *Directory {
	dir := &Directory{clients: make(map[uint64]string)}
	users, ok := doc.Root(root)
	if !ok {
		return dir
	}
	for _, user := range users.Keys() {
		v, _ := users.Get(user)
		entry, ok := v.(*ydoc.Type)
		if !ok {
			continue
		}
		dir.users = append(dir.users, user)

		if ids, err := entryArray(entry, keyIDs); err == nil {
			for _, v := range ids.Values() {
				if client, ok := parseClient(v); ok {
					if _, taken := dir.clients[client]; !taken {
						dir.clients[client] = user
					}
				}
			}
		}
		if dss, err := entryArray(entry, keyDS); err == nil {
			for _, v := range dss.Values() {
				b, ok := v.([]byte)
				if !ok {
					continue
				}
				if ds, err := ydoc.DecodeDeleteSet(b); err == nil {
					dir.deletions = append(dir.deletions, userDeletions{user: user, ds: ds})
				}
			}
		}
	}
	return dir
}

// CreatorOf returns the user owning client.
func (d *Directory) CreatorOf(client uint64) (string, bool) {
	user, ok := d.clients[client]
	return user, ok
}

// DeleterOf returns the user whose session deleted id.
func (d *Directory) DeleterOf(id ydoc.ID) (string, bool) {
	for _, del := range d.deletions {
		if del.ds.Contains(id) {
			return del.user, true
		}
	}
	return "", false
}

// Users returns every user in the directory, sorted.
func (d *Directory) Users() []string {
	return slices.Clone(d.users)
}

// Clients returns the number of registered clients.
func (d *Directory) Clients() int {
	return len(d.clients)
}
