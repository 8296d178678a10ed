package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/models"
)

// ============================================================
// Encoding
// ============================================================

// Encode writes img as png or jpeg. Quality is 0..1; jpeg maps it to
// 1..100 and png uses best compression from 0.9 upwards.
func Encode(w io.Writer, img image.Image, s Settings) error {
	switch s.Format {
	case FormatJPEG, "jpg":
		q := int(s.Quality*100 + 0.5)
		q = max(1, min(100, q))
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
	case "", FormatPNG:
		level := png.DefaultCompression
		if s.Quality >= 0.9 {
			level = png.BestCompression
		}
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(level))
	}
	return fmt.Errorf("unsupported image format %q", s.Format)
}

// ============================================================
// Batch generation
// ============================================================

// CardFailure is a student whose card could not be produced.
type CardFailure struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Err         error  `json:"-"`
	Message     string `json:"error"`
}

type BatchResult struct {
	// Cards holds the successful cards in roster order.
	Cards     []*Card       `json:"cards"`
	Failures  []CardFailure `json:"failures,omitempty"`
	Requested int           `json:"requested"`
	Succeeded int           `json:"succeeded"`
}

// GenerateAll renders one card per student with at most workers renders
// in flight. A failing student is recorded and the batch continues; only
// cancellation stops it early, returning what was produced so far.
func (r *Renderer) GenerateAll(ctx context.Context, doc *models.SceneDocument, students []fields.Student, s Settings, workers int) (*BatchResult, error) {
	if workers < 1 {
		workers = 1
	}

	cards := make([]*Card, len(students))
	failures := make([]*CardFailure, len(students))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, student := range students {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			card, err := r.Render(gctx, doc, student.Record(), s)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = &CardFailure{StudentID: student.ID, StudentName: student.Name, Err: err, Message: err.Error()}
				r.logger.Warn("Card skipped", "student", student.ID, "error", err)
				return nil
			}
			cards[i] = card
			return nil
		})
	}
	err := g.Wait()

	res := &BatchResult{Requested: len(students), Cards: []*Card{}}
	for i := range students {
		if cards[i] != nil {
			res.Cards = append(res.Cards, cards[i])
		}
		if failures[i] != nil {
			res.Failures = append(res.Failures, *failures[i])
		}
	}
	res.Succeeded = len(res.Cards)

	r.logger.Info("Batch rendered", "requested", res.Requested, "succeeded", res.Succeeded, "failed", len(res.Failures))
	if err != nil {
		return res, err
	}
	return res, ctx.Err()
}
