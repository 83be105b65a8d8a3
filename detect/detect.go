// Package detect implements the detect-objects task: a lightweight edge
// heuristic that reports the bounding box of the foreground in an image.
package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

const (
	// TaskName is the task kind served by Handler
	TaskName = "detect-objects"
	// ModelVersion is reported with every response
	ModelVersion = "backend-mvp-edge-heuristic-0.5.0"

	DefaultMinScore      = 0.35
	DefaultEdgeThreshold = 40

	// MaxDebugSleepMs bounds the artificial delay a request may ask for
	MaxDebugSleepMs = 10 * 60 * 1000

	// ForegroundLabel is the only label the heuristic emits
	ForegroundLabel = "foreground"

	minScoreFloor = 0.35
	maxScoreCeil  = 0.95
	scoreBias     = 0.25
)

// ErrInvalidImage marks payloads that could not be decoded into an image
var ErrInvalidImage = errors.New("invalid image payload")

// Request is the detect-objects payload, shared by the synchronous endpoint
// and queued jobs.
type Request struct {
	ImageBase64  string   `json:"imageBase64"`
	MinScore     *float64 `json:"minScore,omitempty"`
	DebugSleepMs int      `json:"debugSleepMs,omitempty"`
}

// Object is one detected region, in pixel coordinates
type Object struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
}

// Response is the detection result
type Response struct {
	Objects      []Object `json:"objects"`
	ModelVersion string   `json:"modelVersion"`
	LatencyMs    float64  `json:"latencyMs"`
	RequestID    string   `json:"requestId"`
}

// Config tunes the heuristic
type Config struct {
	MinScore      float64 // used when a request omits minScore
	EdgeThreshold int     // edge magnitude (0-255) that counts as foreground
	ModelVersion  string
}

// DefaultConfig returns the stock heuristic settings
func DefaultConfig() Config {
	return Config{
		MinScore:      DefaultMinScore,
		EdgeThreshold: DefaultEdgeThreshold,
		ModelVersion:  ModelVersion,
	}
}

// Detector runs the edge heuristic
type Detector struct {
	cfg Config
	now func() time.Time
}

// NewDetector creates a detector; zero config fields fall back to defaults
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.EdgeThreshold <= 0 {
		cfg.EdgeThreshold = def.EdgeThreshold
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = def.ModelVersion
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// Detect decodes the image and runs the heuristic. DebugSleepMs delays the
// work first, honouring ctx, and is capped at MaxDebugSleepMs.
func (d *Detector) Detect(ctx context.Context, req Request) (Response, error) {
	started := d.now()

	if req.DebugSleepMs > 0 {
		sleep := min(req.DebugSleepMs, MaxDebugSleepMs)
		timer := time.NewTimer(time.Duration(sleep) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Response{}, errors.Wrap(ctx.Err(), "detection interrupted")
		}
	}

	img, err := DecodeImage(req.ImageBase64)
	if err != nil {
		return Response{}, err
	}

	minScore := d.cfg.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	objects := d.heuristic(img, minScore)

	requestID := logger.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	elapsed := d.now().Sub(started)
	return Response{
		Objects:      objects,
		ModelVersion: d.cfg.ModelVersion,
		LatencyMs:    round(float64(elapsed)/float64(time.Millisecond), 2),
		RequestID:    requestID,
	}, nil
}

// DecodeImage accepts a data URL ("data:image/png;base64,...") and decodes
// the image after the comma.
func DecodeImage(dataURL string) (image.Image, error) {
	comma := strings.IndexByte(dataURL, ',')
	if comma < 0 {
		return nil, errors.Wrap(ErrInvalidImage, "invalid data URL")
	}
	encoded := strings.TrimSpace(dataURL[comma+1:])

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// tolerate missing padding
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid base64 image data"), ErrInvalidImage)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "cannot identify image file"), ErrInvalidImage)
	}
	return img, nil
}

// heuristic finds the bounding box of all edge pixels and scores it by how
// much of the frame it covers.
func (d *Detector) heuristic(img image.Image, minScore float64) []Object {
	gray := toGray(img)
	edges := findEdges(gray)

	width, height := gray.Rect.Dx(), gray.Rect.Dy()
	threshold := uint8(min(d.cfg.EdgeThreshold, 255))

	xmin, ymin := width, height
	xmax, ymax := -1, -1
	for y := 0; y < height; y++ {
		row := edges.Pix[y*edges.Stride : y*edges.Stride+width]
		for x, v := range row {
			if v < threshold {
				continue
			}
			xmin = min(xmin, x)
			xmax = max(xmax, x)
			ymin = min(ymin, y)
			ymax = max(ymax, y)
		}
	}
	if xmax < 0 {
		return []Object{}
	}

	boxW := max(1, xmax-xmin)
	boxH := max(1, ymax-ymin)
	areaRatio := float64(boxW*boxH) / float64(max(1, width*height))
	score := math.Max(minScoreFloor, math.Min(maxScoreCeil, areaRatio+scoreBias))
	if score < minScore {
		return []Object{}
	}

	return []Object{{
		X:      float64(xmin),
		Y:      float64(ymin),
		Width:  float64(boxW),
		Height: float64(boxH),
		Label:  ForegroundLabel,
		Score:  round(score, 3),
	}}
}

// toGray converts to 8-bit luma using ITU-R 601-2 weights in 16.16 fixed
// point, with the rectangle rebased to the origin. Alpha is ignored, so a
// transparent pixel keeps the brightness of its stored colour.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			l := (uint32(c.R)*19595 + uint32(c.G)*38470 + uint32(c.B)*7471 + 0x8000) >> 16
			out.Pix[y*out.Stride+x] = uint8(l)
		}
	}
	return out
}

// findEdges applies the 3x3 Laplacian-style kernel (8 in the centre, -1
// around), clamped to 0-255. Border pixels keep their input value.
func findEdges(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(src.Rect)
	copy(dst.Pix, src.Pix)
	if w < 3 || h < 3 {
		return dst
	}

	at := func(x, y int) int { return int(src.Pix[y*src.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sum := 8 * at(x, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx != 0 || dy != 0 {
						sum -= at(x+dx, y+dy)
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = uint8(max(0, min(255, sum)))
		}
	}
	return dst
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
