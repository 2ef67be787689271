package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmarins/sitesentry/internal/core"
	"github.com/rmarins/sitesentry/internal/storage"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestOpenMissingFile(t *testing.T) {
	s, _ := tempStore(t)
	targets, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestOpenMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
}

func TestOpenEntryWithoutURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"owner":"alice"}]`), 0o644))

	_, err := Open(path)
	require.Error(t, err)
}

func TestAddGetRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := tempStore(t)

	tgt := &core.Target{URL: "https://example.com", Owner: "alice"}
	require.NoError(t, s.Add(ctx, tgt))
	assert.False(t, tgt.CreatedAt.IsZero())

	assert.ErrorIs(t, s.Add(ctx, tgt), storage.ErrExists)

	got, err := s.Get(ctx, "alice", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.URL)

	_, err = s.Get(ctx, "bob", "https://example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound, "ownership is part of the key")

	require.NoError(t, s.Remove(ctx, "alice", "https://example.com"))
	assert.ErrorIs(t, s.Remove(ctx, "alice", "https://example.com"), storage.ErrNotFound)
}

func TestUpdatePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := tempStore(t)

	notAfter := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	tgt := &core.Target{URL: "https://example.com", Owner: "alice"}
	require.NoError(t, s.Add(ctx, tgt))

	tgt.Domain.NotAfter = &notAfter
	tgt.NotifiedDomain = []int{30, 15}
	tgt.NotifiedDomainFor = &notAfter
	require.NoError(t, s.Update(ctx, tgt))

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "alice", "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got.Domain.NotAfter)
	assert.True(t, got.Domain.NotAfter.Equal(notAfter))
	assert.Equal(t, []int{30, 15}, got.NotifiedDomain)
	require.NotNil(t, got.NotifiedDomainFor)
	assert.True(t, got.NotifiedDomainFor.Equal(notAfter))
}

func TestUpdateNeverCreates(t *testing.T) {
	ctx := context.Background()
	s, _ := tempStore(t)

	tgt := &core.Target{URL: "https://example.com", Owner: "alice"}
	assert.ErrorIs(t, s.Update(ctx, tgt), storage.ErrNotFound)

	require.NoError(t, s.Add(ctx, tgt))
	require.NoError(t, s.Remove(ctx, "alice", "https://example.com"))

	// A stale writer racing a remove must not bring the target back.
	assert.ErrorIs(t, s.Update(ctx, tgt), storage.ErrNotFound)
	_, err := s.Get(ctx, "alice", "https://example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s, _ := tempStore(t)

	for _, pair := range [][2]string{
		{"bob", "https://b.example.com"},
		{"alice", "https://z.example.com"},
		{"alice", "https://a.example.com"},
	} {
		require.NoError(t, s.Add(ctx, &core.Target{Owner: pair[0], URL: pair[1]}))
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://a.example.com", all[0].URL)
	assert.Equal(t, "https://z.example.com", all[1].URL)
	assert.Equal(t, "https://b.example.com", all[2].URL)

	mine, err := s.ListUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	none, err := s.ListUser(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := tempStore(t)

	require.NoError(t, s.Add(ctx, &core.Target{Owner: "alice", URL: "https://example.com"}))

	got, err := s.Get(ctx, "alice", "https://example.com")
	require.NoError(t, err)
	got.HTTP.StatusCode = 500

	again, err := s.Get(ctx, "alice", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, again.HTTP.StatusCode, "mutating a returned target must not leak into the store")
}
