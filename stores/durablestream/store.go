// Package durablestream implements the databus EventStore on top of a
// durable-streams server (https://github.com/durable-streams/durable-streams).
//
// Durable-streams is an HTTP append-only log protocol with opaque string
// offsets. Every shapes process pointed at the same stream joins the same
// bus, so a domain can span machines.
package durablestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	databus "github.com/jilio/shapes"
)

// Store implements databus.EventStore for durable-streams servers.
type Store struct {
	stream *stream
	cfg    *config
}

var _ databus.EventStore = (*Store)(nil)

// StreamPath returns the stream that carries a domain
func StreamPath(domainID uint32) string {
	return fmt.Sprintf("domain-%d", domainID)
}

// Open joins the stream of a domain below baseURL, the server's stream root
// such as "https://server.example.com/v1/stream". The stream is created if
// no process of the domain has done so yet; ctx bounds that request.
func Open(ctx context.Context, baseURL string, domainID uint32, opts ...Option) (*Store, error) {
	if baseURL == "" {
		return nil, errors.New("durablestream: baseURL is required")
	}
	root, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("durablestream: invalid baseURL: %w", err)
	}
	if root.Scheme == "" || root.Host == "" {
		return nil, fmt.Errorf("durablestream: baseURL %q needs a scheme and host", baseURL)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	s := &stream{url: root.JoinPath(StreamPath(domainID)), cfg: cfg}
	if err := s.create(ctx); err != nil {
		return nil, fmt.Errorf("durablestream: %w", err)
	}

	if cfg.logger != nil {
		cfg.logger.Debugw("joined domain stream", "url", s.url.String(), "domain_id", domainID)
	}
	return &Store{stream: s, cfg: cfg}, nil
}

// Append stores an event and returns its assigned offset.
func (s *Store) Append(ctx context.Context, event *databus.Event) (databus.Offset, error) {
	// JSON mode streams take arrays, one element per record
	data, err := json.Marshal([]*databus.Event{event})
	if err != nil {
		return "", fmt.Errorf("durablestream: marshal event: %w", err)
	}

	offset, err := s.stream.append(ctx, data)
	if err != nil {
		return "", fmt.Errorf("durablestream: append: %w", err)
	}

	return databus.Offset(offset), nil
}

// storedEventWithOffset is used to parse events that include their own offset
type storedEventWithOffset struct {
	Offset    string          `json:"offset,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Read returns events starting after the given offset.
//
// Events carrying an "offset" field keep it. Others get a synthetic
// "nextOffset/index" offset that is only unique within one response; the
// returned next offset is always the one to resume from.
func (s *Store) Read(ctx context.Context, from databus.Offset, limit int) ([]*databus.StoredEvent, databus.Offset, error) {
	offset := string(from)
	if from == databus.OffsetOldest {
		offset = "-1"
	}

	pg, err := s.stream.read(ctx, offset, limit)
	if err != nil {
		return nil, from, fmt.Errorf("durablestream: read: %w", err)
	}

	// Empty response means we're at the tail
	if len(pg.body) == 0 || string(pg.body) == "[]" {
		return nil, from, nil
	}

	var rawEvents []json.RawMessage
	if err := json.Unmarshal(pg.body, &rawEvents); err != nil {
		return nil, from, fmt.Errorf("durablestream: unmarshal response: %w", err)
	}

	events := make([]*databus.StoredEvent, 0, len(rawEvents))
	synthetic := false
	for i, raw := range rawEvents {
		var eventWithOffset storedEventWithOffset
		if err := json.Unmarshal(raw, &eventWithOffset); err != nil {
			if s.cfg.logger != nil {
				s.cfg.logger.Warnw("skipping malformed record", "index", i, "error", err)
			}
			continue
		}

		var eventOffset databus.Offset
		if eventWithOffset.Offset != "" {
			eventOffset = databus.Offset(eventWithOffset.Offset)
		} else {
			eventOffset = databus.Offset(fmt.Sprintf("%s/%d", pg.next, i))
			synthetic = true
		}

		events = append(events, &databus.StoredEvent{
			Offset:    eventOffset,
			Type:      eventWithOffset.Type,
			Data:      eventWithOffset.Data,
			Timestamp: parseTimestamp(eventWithOffset.Timestamp),
		})
	}

	next := databus.Offset(pg.next)
	if next == "" {
		next = from
	}

	// Synthetic offsets cannot be resumed from, so a server that ignores the
	// limit gets its whole page delivered
	if limit > 0 && len(events) > limit && !synthetic {
		events = events[:limit]
		next = events[limit-1].Offset
	}

	return events, next, nil
}

// Close is a no-op for HTTP-based stores.
func (s *Store) Close() error {
	return nil
}

// parseTimestamp parses a timestamp string and returns a time.Time.
// Uses RFC3339Nano which is a superset of RFC3339. Returns zero time on failure.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
