package matching

import (
	"sync/atomic"

	"tradecore/internal/domain"
)

// TradeIDGenerator issues TradeIDs for trades executed inside one
// MatchingEngine's command loop. The loop must never block on external I/O
// (spec §5), so it cannot call out to the repository for an ID per trade;
// it assigns its own locally-unique sequence instead; whatever persists the
// trade downstream reconciles it into the global, repository-issued ID
// space (spec §3) at write time.
type TradeIDGenerator struct {
	counter uint64
}

// NewTradeIDGenerator creates a generator starting at 1.
func NewTradeIDGenerator() *TradeIDGenerator {
	return &TradeIDGenerator{}
}

// Next returns the next TradeID. Safe for concurrent use, though a single
// MatchingEngine only ever calls it from its own command-loop goroutine.
func (g *TradeIDGenerator) Next() domain.TradeID {
	return domain.TradeID(atomic.AddUint64(&g.counter, 1))
}
