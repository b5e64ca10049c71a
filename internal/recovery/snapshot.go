package recovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bastion/internal/persistence"
	"bastion/pkg/requestcontext"
)

// Snapshotter reads the marker of every monitored subsystem in parallel.
type Snapshotter struct {
	persistence persistence.MarkerSource
	cache       persistence.MarkerSource
	security    persistence.MarkerSource
}

func NewSnapshotter(persistenceSrc, cache, security persistence.MarkerSource) *Snapshotter {
	return &Snapshotter{persistence: persistenceSrc, cache: cache, security: security}
}

// Capture fails if any subsystem cannot report its marker.
func (s *Snapshotter) Capture(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{TakenAt: requestcontext.Now(ctx)}
	g, ctx := errgroup.WithContext(ctx)

	read := func(name string, src persistence.MarkerSource, dst *string) {
		g.Go(func() error {
			if src == nil {
				return fmt.Errorf("%s marker source not configured", name)
			}
			m, err := src.Marker(ctx)
			if err != nil {
				return fmt.Errorf("%s marker: %w", name, err)
			}
			*dst = m
			return nil
		})
	}
	read(FieldPersistence, s.persistence, &snap.Persistence)
	read(FieldCache, s.cache, &snap.Cache)
	read(FieldSecurity, s.security, &snap.Security)

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// MarkerFunc adapts a function to persistence.MarkerSource.
type MarkerFunc func(ctx context.Context) (string, error)

func (f MarkerFunc) Marker(ctx context.Context) (string, error) { return f(ctx) }
