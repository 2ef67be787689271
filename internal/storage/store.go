package storage

import (
	"context"
	"errors"

	"github.com/rmarins/sitesentry/internal/core"
)

var (
	ErrNotFound = errors.New("target not found")
	ErrExists   = errors.New("target already exists")
)

// TargetStore supplies and persists target configuration. The chat layer
// drives Add/Remove; the check engine drives Update after every pass.
// Update returns ErrNotFound for absent keys: only Add may create a
// target, so a pass finishing after a remove cannot re-insert it.
type TargetStore interface {
	List(ctx context.Context) ([]*core.Target, error)
	ListUser(ctx context.Context, owner string) ([]*core.Target, error)
	Get(ctx context.Context, owner, url string) (*core.Target, error)
	Add(ctx context.Context, t *core.Target) error
	Update(ctx context.Context, t *core.Target) error
	Remove(ctx context.Context, owner, url string) error
}
