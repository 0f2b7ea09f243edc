package recorder

import "context"

// NoopStore is used when no database is configured.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) Upsert(_ context.Context, kind Kind, _ string, _ Fields) error {
	return checkKind(kind)
}

func (n *NoopStore) List(_ context.Context, kind Kind, _ int) ([]Record, error) {
	return nil, checkKind(kind)
}

func (n *NoopStore) Close() error { return nil }
