package p2p

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultDiscoveryInterval = 30 * time.Second

// DiscoveryConfig holds configuration for seed peer dialing.
type DiscoveryConfig struct {
	SeedPeers []string
	Server    *Server
	Interval  time.Duration
}

// Discovery keeps outbound sessions to the configured seed peers, redialing
// any seed that has dropped.
type Discovery struct {
	config DiscoveryConfig
	log    *zap.SugaredLogger
}

func NewDiscovery(config DiscoveryConfig) *Discovery {
	if config.Interval <= 0 {
		config.Interval = defaultDiscoveryInterval
	}
	return &Discovery{
		config: config,
		log:    config.Server.log.With("subcomponent", "discovery"),
	}
}

// Run dials every seed, then redials dropped seeds each interval until ctx
// is done.
func (d *Discovery) Run(ctx context.Context) error {
	d.log.Infow("starting peer discovery", "seeds", len(d.config.SeedPeers))
	d.connectToSeeds(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.connectToSeeds(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Discovery) connectToSeeds(ctx context.Context) {
	for _, address := range d.config.SeedPeers {
		if ctx.Err() != nil {
			return
		}
		if d.config.Server.peers.HasAddress(address) {
			continue
		}
		if err := d.config.Server.Connect(ctx, address); err != nil {
			d.log.Warnw("failed to connect to seed", "address", address, "error", err)
			continue
		}
	}
}
