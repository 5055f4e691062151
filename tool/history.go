package tool

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/tools"
)

var processSteps = []string{"Photo", "Etch", "Deposition"}

// ProcessHistory generates a random process history for a LOT. Each history has
// 5 to 10 steps and exactly one of them is ABNORMAL.
type ProcessHistory struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

var _ tools.Tool = (*ProcessHistory)(nil)

// HistoryOption configures a ProcessHistory.
type HistoryOption func(*ProcessHistory)

// WithHistorySeed makes the generated histories reproducible.
func WithHistorySeed(seed uint64) HistoryOption {
	return func(h *ProcessHistory) {
		h.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithHistoryClock sets the clock the history is anchored to.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *ProcessHistory) {
		h.now = now
	}
}

// NewProcessHistory creates a generator. Without a seed it is randomly seeded.
func NewProcessHistory(opts ...HistoryOption) *ProcessHistory {
	h := &ProcessHistory{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.rnd == nil {
		h.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return h
}

// Name implements tools.Tool
func (h *ProcessHistory) Name() string {
	return "generate_process_history"
}

// Description implements tools.Tool
func (h *ProcessHistory) Description() string {
	return "LOT의 공정 이력을 조회합니다. 입력: LOT 번호"
}

// Call implements tools.Tool
func (h *ProcessHistory) Call(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return h.Generate(LotID(input)), nil
}

// Generate returns the history text of lotID.
func (h *ProcessHistory) Generate(lotID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 5 + h.rnd.IntN(6)
	abnormal := h.rnd.IntN(n)
	at := h.now().Add(-5 * 24 * time.Hour)

	var sb strings.Builder
	fmt.Fprintf(&sb, "LOT %s 공정 이력:", lotID)
	for i := range n {
		step := processSteps[h.rnd.IntN(len(processSteps))]
		at = at.Add(time.Duration(1+h.rnd.IntN(12)) * time.Hour)

		loss, status := 0.1+h.rnd.Float64()*1.9, "NORMAL"
		if i == abnormal {
			loss, status = 20+h.rnd.Float64()*30, "ABNORMAL"
		}
		fmt.Fprintf(&sb, "\n- %s: %s (Loss: %.2f%%) [%s]", at.Format("2006-01-02 15:04"), step, loss, status)
	}
	return sb.String()
}
