package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ExtractionResult is the structured guess produced for one receipt
type ExtractionResult struct {
	Amount        decimal.Decimal
	Category      Category
	Description   string
	Date          time.Time // when the result was generated, UTC by default
	ExtractedText string
	Variant       string // label of the variant whose text won
}

// Fields returns the result in the shape consumed by expense creation
func (r *ExtractionResult) Fields() map[string]any {
	return map[string]any{
		"amount":         r.Amount.InexactFloat64(),
		"category":       string(r.Category),
		"description":    r.Description,
		"date":           r.Date.Format(time.RFC3339),
		"extracted_text": r.ExtractedText,
	}
}

// MarshalJSON encodes the result as its Fields map
func (r *ExtractionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithRecognitionTimeout caps how long a single recognition call may take
func WithRecognitionTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithClock overrides the time source used to stamp results
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline turns receipt images into ExtractionResults
type Pipeline struct {
	preprocessor *Preprocessor
	source       TextSource
	classifier   *Classifier
	timeout      time.Duration
	now          func() time.Time
}

// NewPipeline creates a Pipeline from its stages
func NewPipeline(preprocessor *Preprocessor, source TextSource, classifier *Classifier, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		preprocessor: preprocessor,
		source:       source,
		classifier:   classifier,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract runs the full pipeline over one image. Errors wrap either
// ErrMalformedInput or ErrProcessing; no partial result is returned.
func (p *Pipeline) Extract(ctx context.Context, data []byte, mediaType string, name string) (*ExtractionResult, error) {
	variants, err := p.preprocessor.Preprocess(data, mediaType)
	if err != nil {
		if errors.Is(err, ErrMalformedInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: preprocessing: %w", ErrProcessing, err)
	}

	texts, err := p.recognizeAll(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	best, ok := SelectBest(texts)
	if !ok {
		return nil, fmt.Errorf("%w: no variants to recognize", ErrProcessing)
	}
	slog.Debug("Selected recognized text", "name", name, "variant", best.Label, "length", len(best.Text))

	return &ExtractionResult{
		Amount:        ExtractAmount(best.Text),
		Category:      p.classifier.Classify(best.Text),
		Description:   fmt.Sprintf("Scanned Receipt (%s)", name),
		Date:          p.now(),
		ExtractedText: best.Text,
		Variant:       best.Label,
	}, nil
}

// recognizeAll runs the text source over every variant concurrently and
// returns the texts in variant order once all calls have finished
func (p *Pipeline) recognizeAll(ctx context.Context, variants []Variant) ([]RecognizedText, error) {
	texts := make([]RecognizedText, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			text, err := p.recognize(gctx, v.Bitmap)
			if err != nil {
				return fmt.Errorf("recognizing %s variant: %w", v.Label, err)
			}
			slog.Debug("Recognized variant", "variant", v.Label, "length", len(text))
			texts[i] = RecognizedText{Label: v.Label, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// recognize calls the text source, giving up once the timeout elapses even
// when the source itself ignores the context
func (p *Pipeline) recognize(ctx context.Context, img *image.Gray) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := p.source.Recognize(ctx, img)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for recognition: %w", ctx.Err())
	}
}
