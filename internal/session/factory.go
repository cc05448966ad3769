package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"npud/internal/engine"
	"npud/internal/npu"
	"npud/internal/tokenizer"
)

// WeightsFile is the quantized weights file inside a model directory.
const WeightsFile = "model.q4nx"

// NPUFactory returns a Factory that opens models from their directories on
// drv. Each load gets a fresh accelerator manager, so the binaries and
// applications of a previous model do not count against the new one. The
// Runtime owns that manager and releases it in Close.
func NPUFactory(drv npu.Driver, log zerolog.Logger) Factory {
	return func(ctx context.Context, m Model, maxLen int) (*Runtime, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		accel := npu.New(drv, npu.WithLogger(log))
		eng, cfg, err := engine.Open(m.Dir, accel, maxLen)
		if err != nil {
			_ = accel.Close()
			return nil, err
		}
		rt := &Runtime{
			Engine:      eng,
			Accelerator: accel,
			Config:      cfg,
			WeightsPath: filepath.Join(m.Dir, WeightsFile),
		}
		tok, err := tokenizer.Load(m.Dir, eng.Family())
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		if tok.VocabSize() > eng.VocabSize() {
			_ = rt.Close()
			return nil, fmt.Errorf("tokenizer has %d tokens but the model only %d", tok.VocabSize(), eng.VocabSize())
		}
		rt.Tokenizer = tok
		return rt, nil
	}
}

// SimFactory returns a Factory over the simulated driver. Every model answers
// any prompt with reply, so the whole stack runs without an accelerator.
func SimFactory(reply string, log zerolog.Logger) Factory {
	return func(ctx context.Context, m Model, maxLen int) (*Runtime, error) {
		cfg, err := engine.LoadConfig(m.Dir)
		if err != nil {
			return nil, err
		}
		fam, err := engine.ParseFamily(cfg.ModelType)
		if err != nil {
			return nil, err
		}
		tok, err := tokenizer.Load(m.Dir, fam)
		if err != nil {
			return nil, err
		}
		eos := tok.EOS()
		if len(eos) == 0 {
			return nil, fmt.Errorf("tokenizer in %s declares no end-of-sequence token", m.Dir)
		}
		sim := engine.NewSimModel(cfg.VocabSize, engine.ScriptedReply(tok.Encode(reply), eos[len(eos)-1]))
		drv := npu.NewSimDriver()
		drv.Kernel = sim.Kernel
		return NPUFactory(drv, log)(ctx, m, maxLen)
	}
}
