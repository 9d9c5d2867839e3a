package central

import (
	"context"
	"time"

	"github.com/kilianp07/evcharge/core/model"
)

// registryPollLoop periodically pulls the registry inventory and reports
// charging points registered there that have no live connection here.
func (s *Server) registryPollLoop(ctx context.Context) {
	t := time.NewTicker(time.Duration(s.cfg.RegistryPollSeconds) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			missing, err := s.pollRegistry(ctx)
			if err != nil {
				s.log.Warnf("registry poll: %v", err)
				continue
			}
			if len(missing) > 0 {
				s.log.Infof("registry lists %d charging points without a connection: %v", len(missing), missing)
			}
		}
	}
}

// pollRegistry fetches the registry inventory and returns the ids of
// charging points the registry knows but the fleet has no live record for.
func (s *Server) pollRegistry(ctx context.Context) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.VerifyTimeout)*time.Second)
	defer cancel()
	entries, err := s.verifier.List(cctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	s.mu.Lock()
	for _, e := range entries {
		cp, ok := s.cps[e.CPID]
		if !ok || cp.State == model.StateDisconnected {
			missing = append(missing, e.CPID)
		}
	}
	s.mu.Unlock()
	return missing, nil
}
