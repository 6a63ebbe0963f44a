package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"salesdesk/internal/domain"
)

// maxPages bounds how far a single list call follows next links.
const maxPages = 1000

// Listing is a list response normalized at the network boundary. Lists come
// back either as a bare array or as a {results, next} page envelope; Paged
// tells which one was seen.
type Listing[T any] struct {
	Items []T
	Next  string
	Paged bool
}

type pageEnvelope[T any] struct {
	Results *[]T    `json:"results"`
	Next    *string `json:"next"`
}

// DecodeListing decodes either list shape.
func DecodeListing[T any](raw []byte) (Listing[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Listing[T]{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Listing[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return Listing[T]{Items: items}, nil
	case '{':
		var page pageEnvelope[T]
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return Listing[T]{}, fmt.Errorf("decode page: %w", err)
		}
		// An object without results is an error body sent with a 2xx, not
		// an empty page.
		if page.Results == nil {
			return Listing[T]{}, fmt.Errorf("page envelope has no results%s", envelopeDetail(trimmed))
		}
		next := ""
		if page.Next != nil {
			next = *page.Next
		}
		return Listing[T]{Items: *page.Results, Next: next, Paged: true}, nil
	default:
		return Listing[T]{}, fmt.Errorf("unexpected list payload starting with %q", trimmed[0])
	}
}

func envelopeDetail(raw []byte) string {
	if detail := extractDetail(raw); detail != "" {
		return ": " + detail
	}
	return ""
}

// listAll fetches path and follows next links until exhausted, returning the
// concatenation of every page in order. Nothing is returned unless every page
// was read.
func listAll[T any](ctx context.Context, c *Client, op string, path string, token string) ([]T, error) {
	all := make([]T, 0)
	seen := make(map[string]struct{})
	next := path

	for next != "" {
		if _, dup := seen[next]; dup {
			return nil, &domain.RemoteError{Op: op, Err: fmt.Errorf("pagination loop at %s", next)}
		}
		if len(seen) >= maxPages {
			return nil, &domain.RemoteError{Op: op, Err: fmt.Errorf("more than %d pages", maxPages)}
		}
		seen[next] = struct{}{}

		var raw json.RawMessage
		if err := c.do(ctx, request{op: op, method: http.MethodGet, path: next, token: token}, &raw); err != nil {
			return nil, err
		}
		listing, err := DecodeListing[T](raw)
		if err != nil {
			return nil, &domain.RemoteError{Op: op, Err: err}
		}
		all = append(all, listing.Items...)
		next = listing.Next
	}

	return all, nil
}
