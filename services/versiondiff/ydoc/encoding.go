// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ydoc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"
)

// encoder appends varint-framed values to buf.
type encoder struct {
	buf []byte
}

func (e *encoder) byte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) uvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) bytes(b []byte) {
	e.uvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) string(s string) {
	e.uvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) id(id ID) {
	e.uvarint(id.Client)
	e.uvarint(id.Clock)
}

func (e *encoder) deleteSet(ds *DeleteSet) {
	clients := ds.Clients()
	e.uvarint(uint64(len(clients)))
	for _, client := range clients {
		ranges := ds.Ranges(client)
		e.uvarint(client)
		e.uvarint(uint64(len(ranges)))
		for _, r := range ranges {
			e.uvarint(r.Clock)
			e.uvarint(r.Len)
		}
	}
}

func (e *encoder) stateVector(sv StateVector) {
	clients := sv.Clients()
	e.uvarint(uint64(len(clients)))
	for _, client := range clients {
		e.uvarint(client)
		e.uvarint(sv[client])
	}
}

// decoder reads values written by encoder. The first failure sticks: later
// reads return zero values and finish reports the error.
type decoder struct {
	buf []byte
	pos int
	err error
}

func newDecoder(b []byte) *decoder {
	return &decoder{buf: b}
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%s at offset %d: %w", fmt.Sprintf(format, args...), d.pos, ErrMalformedUpdate)
	}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) byte() byte {
	if d.err != nil {
		return 0
	}
	if d.remaining() < 1 {
		d.fail("unexpected end of input")
		return 0
	}
	b := d.buf[d.pos]
	d.pos++
	return b
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail("invalid varint")
		return 0
	}
	d.pos += n
	return v
}

// count reads a collection length and rejects lengths that cannot fit in
// the remaining input, given each element takes at least minSize bytes.
func (d *decoder) count(minSize int) int {
	n := d.uvarint()
	if d.err != nil {
		return 0
	}
	if n > uint64(d.remaining()/minSize) {
		d.fail("length %d exceeds input", n)
		return 0
	}
	return int(n)
}

func (d *decoder) bytes() []byte {
	n := d.count(1)
	if d.err != nil {
		return nil
	}
	out := bytes.Clone(d.buf[d.pos : d.pos+n])
	d.pos += n
	if out == nil {
		out = []byte{}
	}
	return out
}

func (d *decoder) string() string {
	n := d.count(1)
	if d.err != nil {
		return ""
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s
}

func (d *decoder) id() ID {
	client := d.uvarint()
	clock := d.uvarint()
	return ID{Client: client, Clock: clock}
}

func (d *decoder) deleteSet() *DeleteSet {
	ds := NewDeleteSet()
	clients := d.count(2)
	for range clients {
		client := d.uvarint()
		ranges := d.count(2)
		for range ranges {
			clock := d.uvarint()
			length := d.uvarint()
			if d.err != nil {
				return ds
			}
			if length == 0 || clock+length < clock {
				d.fail("invalid delete range")
				return ds
			}
			ds.Add(client, clock, length)
		}
	}
	return ds
}

func (d *decoder) stateVector() StateVector {
	sv := StateVector{}
	n := d.count(2)
	for range n {
		client := d.uvarint()
		clock := d.uvarint()
		if d.err != nil {
			return sv
		}
		sv[client] = clock
	}
	return sv
}

// finish reports the sticky error, or a malformed error if input remains.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.remaining() != 0 {
		d.fail("%d trailing bytes", d.remaining())
		return d.err
	}
	return nil
}

// marshalJSON encodes a JSON content value.
func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalJSON decodes a JSON content value keeping numbers as json.Number.
func unmarshalJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// normalizeJSON returns v as it will look after an encode/decode round
// trip, so locally written values compare equal to remotely applied ones.
func normalizeJSON(v any) (any, error) {
	b, err := marshalJSON(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return unmarshalJSON(b)
}
