// Package event defines the Event payload relayed from producers to subscribers.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Strob0t/spawnrelay/internal/domain"
)

// TypeSpawn is the event type emitted when a mob appears on a map.
const TypeSpawn = "spawn"

var (
	// ErrInvalidJSON is returned when a payload is not syntactically valid JSON.
	ErrInvalidJSON = fmt.Errorf("%w: invalid JSON format", domain.ErrValidation)
	// ErrNotObject is returned when a payload is valid JSON but not an object.
	ErrNotObject = fmt.Errorf("%w: invalid JSON: must be an object", domain.ErrValidation)
)

// Event is an open-ended JSON object. Only the "type" key has meaning to the
// relay; every other key is opaque payload passed through unchanged.
type Event map[string]any

// Type returns the event's "type" field, or "" when it is absent or not a string.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Marshal encodes the event as a JSON text frame.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(map[string]any(e))
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Decode reads exactly one JSON document from r and requires it to be an
// object. Numbers are kept as json.Number so they re-encode literally.
func Decode(r io.Reader) (Event, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if isSyntaxError(err) {
			return nil, ErrInvalidJSON
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	// Trailing garbage after the first document is a syntax error too.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil && !isSyntaxError(err) {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return nil, ErrInvalidJSON
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Event(obj), nil
}

func isSyntaxError(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.As(err, &syntaxErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// DecodeBytes is Decode over an in-memory payload.
func DecodeBytes(data []byte) (Event, error) {
	return Decode(bytes.NewReader(data))
}

// NewSpawn builds a spawn event. Keys in extra are merged over the base fields.
func NewSpawn(mobID string, x, y int, mapID string, extra map[string]any) Event {
	e := Event{
		"type":   TypeSpawn,
		"mob_id": mobID,
		"x":      x,
		"y":      y,
		"map_id": mapID,
	}
	for k, v := range extra {
		e[k] = v
	}
	return e
}
