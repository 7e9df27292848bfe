package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"time"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
)

// Pool bounds concurrent recognitions and applies a per-call timeout. It is
// independent of request dispatch so slow OCR cannot starve other requests.
type Pool struct {
	engine  Engine
	slots   chan struct{}
	timeout time.Duration
	logger  *logging.Logger
}

// NewPool creates a pool running at most workers recognitions at once.
func NewPool(engine Engine, workers int, timeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		engine:  engine,
		slots:   make(chan struct{}, workers),
		timeout: timeout,
		logger:  logging.NewLogger("OCR"),
	}
}

type outcome struct {
	res *Result
	err error
}

// Recognize encodes img as PNG and runs the engine on it. Waiting for a slot
// counts against the timeout. A timed-out call keeps its slot until the
// engine returns, so the bound holds even for engines that ignore ctx.
func (p *Pool) Recognize(ctx context.Context, img image.Image) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", svcerrors.NewOCRFailedError(p.engine.Name(), err)
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return "", svcerrors.NewOCRFailedError(p.engine.Name(), ctx.Err())
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() { <-p.slots }()
		res, err := p.engine.Recognize(ctx, buf.Bytes())
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return "", svcerrors.NewOCRFailedError(p.engine.Name(), o.err)
		}
		p.logger.Debug("Region recognized",
			"engine", o.res.Engine, "chars", len(o.res.Text),
			"confidence", o.res.Confidence, "duration", o.res.Duration)
		return o.res.Text, nil
	case <-ctx.Done():
		p.logger.Warn("OCR timed out", "engine", p.engine.Name(), "timeout", p.timeout)
		return "", svcerrors.NewOCRFailedError(p.engine.Name(), ctx.Err())
	}
}

// Close releases the engine.
func (p *Pool) Close() error {
	return p.engine.Close()
}
