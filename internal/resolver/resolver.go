// Package resolver fills in host display names for a batch of problems
// with a bounded number of concurrent backend lookups.
package resolver

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixlim/zbx-alerting/internal/logging"
	"github.com/nixlim/zbx-alerting/internal/problem"
	"github.com/nixlim/zbx-alerting/internal/zabbix"
)

// HostLookup resolves one host id to a display name.
type HostLookup interface {
	ResolveHost(ctx context.Context, hostID string) (string, error)
}

type Resolver struct {
	lookup      HostLookup
	concurrency int
	cache       *lru.Cache // nil unless a cross-cycle capacity is configured
	logger      *zap.Logger
}

// New builds a resolver. concurrency below 1 is treated as 1. A positive
// cacheSize keeps up to that many successful lookups across cycles;
// zero limits caching to a single Resolve call.
func New(lookup HostLookup, concurrency, cacheSize int, logger *zap.Logger) (*Resolver, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	logger = logging.OrNop(logger)
	r := &Resolver{
		lookup:      lookup,
		concurrency: concurrency,
		logger:      logger.Named("resolver"),
	}
	if cacheSize > 0 {
		c, err := lru.New(cacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	return r, nil
}

// Resolve returns a copy of problems with HostName set. Each distinct host
// id is looked up at most once per call. A failed lookup falls back to the
// raw host id; it never drops the problem.
func (r *Resolver) Resolve(ctx context.Context, problems []problem.Problem) []problem.Problem {
	out := make([]problem.Problem, len(problems))
	copy(out, problems)

	var pending []string
	seen := make(map[string]bool)
	names := make(map[string]string)
	for _, p := range out {
		if p.HostName != "" || p.HostID == "" || seen[p.HostID] {
			continue
		}
		seen[p.HostID] = true
		if r.cache != nil {
			if v, ok := r.cache.Get(p.HostID); ok {
				names[p.HostID] = v.(string)
				continue
			}
		}
		pending = append(pending, p.HostID)
	}

	if len(pending) > 0 {
		results := make([]string, len(pending))
		var g errgroup.Group
		g.SetLimit(r.concurrency)
		for i, hostID := range pending {
			g.Go(func() error {
				results[i] = r.resolveOne(ctx, hostID)
				return nil
			})
		}
		// A failed lookup falls back to the host id, so no task returns an error.
		g.Wait()
		for i, hostID := range pending {
			names[hostID] = results[i]
		}
	}

	for i := range out {
		if out[i].HostName == "" && out[i].HostID != "" {
			out[i].HostName = names[out[i].HostID]
		}
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, hostID string) string {
	started := time.Now()
	name, err := r.lookup.ResolveHost(ctx, hostID)
	if err != nil {
		r.logger.Warn("host resolution failed, using host id",
			zap.String("host", hostID),
			zap.String("correlation_id", zabbix.CorrelationID(err)),
			zap.Duration("latency", time.Since(started)),
			zap.Error(err),
		)
		return hostID
	}
	if name == "" {
		name = hostID
	} else if r.cache != nil {
		r.cache.Add(hostID, name)
	}
	return name
}
