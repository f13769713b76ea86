package universe

import (
	"context"
	"strings"

	"stealth-signal-bot/internal/config"
)

// Provider supplies the symbols to scan.
type Provider interface {
	Symbols(ctx context.Context) ([]string, error)
}

// Static serves a fixed list, deduplicated and truncated to a size limit.
type Static struct {
	symbols []string
}

// NewStatic builds a Static provider from the universe config.
func NewStatic(cfg config.Universe) *Static {
	seen := make(map[string]bool, len(cfg.Symbols))
	out := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if cfg.Size > 0 && len(out) > cfg.Size {
		out = out[:cfg.Size]
	}
	return &Static{symbols: out}
}

func (s *Static) Symbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.symbols...), nil
}

// Live rebuilds the universe from the config store on every call, so
// updates made at runtime apply from the next scan.
type Live struct {
	cfg *config.Store
}

func NewLive(cfg *config.Store) *Live {
	return &Live{cfg: cfg}
}

func (l *Live) Symbols(ctx context.Context) ([]string, error) {
	return NewStatic(l.cfg.Get().Universe).Symbols(ctx)
}
