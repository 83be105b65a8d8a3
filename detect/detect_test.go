package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

// ============================================================================
// Darkroom Test Universe
// ============================================================================
//
// Characters:
//   - Ansel: Develops test prints (synthetic PNGs)
//   - The Loupe: Squints at the print and draws a box around what stands out
//
// Theme: a white square on black paper is the canonical subject; an
// all-black print has nothing to find.
// ============================================================================

// develop returns a data URL for a size x size PNG, black with a white square
// covering [from, to) on both axes. from == to yields a blank print.
func develop(t *testing.T, size, from, to int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{A: 255}
			if x >= from && x < to && y >= from && y < to {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestLoupeFindsTheSquare(t *testing.T) {
	t.Log("📷 Ansel develops a white square on black paper")
	d := NewDetector(DefaultConfig())

	resp, err := d.Detect(context.Background(), Request{ImageBase64: develop(t, 40, 10, 30)})
	require.NoError(t, err)

	require.Len(t, resp.Objects, 1)
	obj := resp.Objects[0]
	assert.Equal(t, 10.0, obj.X)
	assert.Equal(t, 10.0, obj.Y)
	assert.Equal(t, 19.0, obj.Width)
	assert.Equal(t, 19.0, obj.Height)
	assert.Equal(t, ForegroundLabel, obj.Label)
	assert.InDelta(t, 0.476, obj.Score, 0.0005)
	assert.Equal(t, ModelVersion, resp.ModelVersion)
	assert.NotEmpty(t, resp.RequestID)
	assert.GreaterOrEqual(t, resp.LatencyMs, 0.0)
	t.Log("✓ the Loupe boxed the square")
}

func TestLoupeSeesThroughTransparentPrint(t *testing.T) {
	t.Log("📷 Ansel hands over a fully transparent negative of the same square")
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			c := color.NRGBA{}
			if x >= 5 && x < 15 && y >= 5 && y < 15 {
				c = color.NRGBA{R: 255, G: 255, B: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	d := NewDetector(DefaultConfig())
	resp, err := d.Detect(context.Background(), Request{
		ImageBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	require.NoError(t, err)

	require.Len(t, resp.Objects, 1, "alpha must not blacken the stored colour")
	assert.Equal(t, ForegroundLabel, resp.Objects[0].Label)
	t.Log("✓ the Loupe read the colour under the alpha")
}

func TestToGrayRoundsLikeFixedPoint(t *testing.T) {
	img := image.NewNRGBA(image.Rect(3, 3, 6, 4))
	img.SetNRGBA(3, 3, color.NRGBA{B: 5, A: 255})
	img.SetNRGBA(4, 3, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(5, 3, color.NRGBA{B: 5})

	gray := toGray(img)
	require.Equal(t, image.Rect(0, 0, 3, 1), gray.Bounds())
	assert.Equal(t, uint8(1), gray.GrayAt(0, 0).Y, "5*0.114 rounds up to 1")
	assert.Equal(t, uint8(255), gray.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(1), gray.GrayAt(2, 0).Y, "transparent pixels keep their colour")
}

func TestLoupeOnBlankPrint(t *testing.T) {
	d := NewDetector(DefaultConfig())

	resp, err := d.Detect(context.Background(), Request{ImageBase64: develop(t, 16, 0, 0)})
	require.NoError(t, err)
	assert.NotNil(t, resp.Objects)
	assert.Empty(t, resp.Objects)
}

func TestLoupeScoreIsClamped(t *testing.T) {
	d := NewDetector(DefaultConfig())

	t.Run("bright frame edge covers the whole print", func(t *testing.T) {
		resp, err := d.Detect(context.Background(), Request{ImageBase64: develop(t, 20, 0, 20)})
		require.NoError(t, err)
		require.Len(t, resp.Objects, 1)
		assert.Equal(t, 0.95, resp.Objects[0].Score)
	})

	t.Run("tiny subject scores the floor", func(t *testing.T) {
		resp, err := d.Detect(context.Background(), Request{ImageBase64: develop(t, 100, 50, 52)})
		require.NoError(t, err)
		require.Len(t, resp.Objects, 1)
		assert.Equal(t, 0.35, resp.Objects[0].Score)
	})
}

func TestLoupeRespectsMinScore(t *testing.T) {
	d := NewDetector(DefaultConfig())
	strict := 0.9

	resp, err := d.Detect(context.Background(), Request{ImageBase64: develop(t, 40, 10, 30), MinScore: &strict})
	require.NoError(t, err)
	assert.Empty(t, resp.Objects)

	lenient := NewDetector(Config{MinScore: 0.9})
	resp, err = lenient.Detect(context.Background(), Request{ImageBase64: develop(t, 40, 10, 30)})
	require.NoError(t, err)
	assert.Empty(t, resp.Objects, "configured default applies when the request omits minScore")
}

func TestLoupeRejectsBadPrints(t *testing.T) {
	d := NewDetector(DefaultConfig())

	cases := map[string]string{
		"no comma":      "iVBORw0KGgo",
		"bad base64":    "data:image/png;base64,@@@",
		"not an image":  "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello")),
		"empty payload": "data:image/png;base64,",
	}
	for name, dataURL := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Detect(context.Background(), Request{ImageBase64: dataURL})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidImage), "got %v", err)
		})
	}
}

func TestDecodeImageToleratesMissingPadding(t *testing.T) {
	dataURL := develop(t, 7, 2, 5)
	for len(dataURL) > 0 && dataURL[len(dataURL)-1] == '=' {
		dataURL = dataURL[:len(dataURL)-1]
	}
	img, err := DecodeImage(dataURL)
	require.NoError(t, err)
	assert.Equal(t, 7, img.Bounds().Dx())
}

func TestDebugSleepHonoursCancellation(t *testing.T) {
	d := NewDetector(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.Detect(ctx, Request{ImageBase64: develop(t, 8, 2, 6), DebugSleepMs: 5000})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDebugSleepIsCappedNotWrapped(t *testing.T) {
	d := NewDetector(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Unclamped, this many milliseconds overflows into a negative duration
	// and the timer fires at once
	_, err := d.Detect(ctx, Request{ImageBase64: develop(t, 8, 2, 6), DebugSleepMs: math.MaxInt})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDetectCarriesRequestID(t *testing.T) {
	d := NewDetector(DefaultConfig())
	ctx := logger.WithRequestID(context.Background(), "req-123")

	resp, err := d.Detect(ctx, Request{ImageBase64: develop(t, 8, 2, 6)})
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.RequestID)
}

func TestHandler(t *testing.T) {
	h := NewHandler(NewDetector(DefaultConfig()))
	assert.Equal(t, TaskName, h.Name())

	t.Run("validate", func(t *testing.T) {
		assert.Error(t, h.Validate(nil))
		assert.Error(t, h.Validate(json.RawMessage(`{"minScore":0.5}`)))
		assert.Error(t, h.Validate(json.RawMessage(`not json`)))
		assert.NoError(t, h.Validate(json.RawMessage(`{"task":"detect-objects","imageBase64":"data:,x"}`)),
			"decoding is deferred to execution")
	})

	t.Run("validate bounds the debug sleep", func(t *testing.T) {
		ok, err := json.Marshal(Request{ImageBase64: "data:,x", DebugSleepMs: MaxDebugSleepMs})
		require.NoError(t, err)
		assert.NoError(t, h.Validate(ok))

		tooLong, err := json.Marshal(Request{ImageBase64: "data:,x", DebugSleepMs: MaxDebugSleepMs + 1})
		require.NoError(t, err)
		assert.ErrorContains(t, h.Validate(tooLong), "debugSleepMs must not exceed")

		huge := json.RawMessage(`{"imageBase64":"data:,x","debugSleepMs":9223372036854775807}`)
		assert.Error(t, h.Validate(huge), "a value that would overflow time.Duration is refused")
	})

	t.Run("execute", func(t *testing.T) {
		payload, err := json.Marshal(map[string]interface{}{
			"task":        TaskName,
			"imageBase64": develop(t, 40, 10, 30),
		})
		require.NoError(t, err)

		out, err := h.Execute(context.Background(), payload)
		require.NoError(t, err)

		var resp Response
		require.NoError(t, json.Unmarshal(out, &resp))
		require.Len(t, resp.Objects, 1)
		assert.Equal(t, ModelVersion, resp.ModelVersion)
	})

	t.Run("execute with broken image fails", func(t *testing.T) {
		_, err := h.Execute(context.Background(), json.RawMessage(`{"imageBase64":"nope"}`))
		assert.True(t, errors.Is(err, ErrInvalidImage))
	})
}
