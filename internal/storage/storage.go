package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrNotInteger = errors.New("value is not an integer")

// Store is a string-keyed persistent key/value store.
// A missing key is reported with found=false, never as an error.
// Delete of a missing key is a no-op.
// Keys returns the keys starting with prefix in ascending order.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Counter is implemented by stores that increment a numeric value in one
// step, so concurrent writers sharing the store never lose an update.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Incr adds one to the integer stored at key and returns the new value.
// A missing key counts as zero. Stores without Counter fall back to a read
// followed by a write.
func Incr(ctx context.Context, s Store, key string) (int64, error) {
	if c, ok := s.(Counter); ok {
		return c.Incr(ctx, key)
	}
	v, found, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := parseCounter(v, found)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	n++
	if err := s.Set(ctx, key, strconv.FormatInt(n, 10)); err != nil {
		return 0, err
	}
	return n, nil
}

func parseCounter(v string, found bool) (int64, error) {
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}

type prefixed struct {
	inner  Store
	prefix string
}

// Prefixed scopes every key of inner under prefix. Keys returned by the
// wrapper have the prefix stripped.
func Prefixed(inner Store, prefix string) Store {
	return &prefixed{inner: inner, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Incr(ctx context.Context, key string) (int64, error) {
	return Incr(ctx, p.inner, p.prefix+key)
}

func (p *prefixed) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.inner.Keys(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, p.prefix))
	}
	return out, nil
}

func matchingKeys(data map[string]string, prefix string) []string {
	var out []string
	for k := range data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
