package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG))
	return buf.Bytes()
}

func decoded(t *testing.T, img Image) image.Image {
	t.Helper()
	out, err := imaging.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	return out
}

func TestPreprocessResize(t *testing.T) {
	grey := color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"upscales short edge", 400, 300, 1333, 1000},
		{"downscales long edge", 3000, 1500, 2000, 1000},
		{"keeps size inside window", 1200, 1600, 1200, 1600},
	}
	p := NewPreprocessor(PreprocessConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Prepare(context.Background(), Image{Page: 2, Data: encodePNG(t, tt.w, tt.h, grey)})
			require.NoError(t, err)
			assert.Equal(t, 2, out.Page)
			assert.Empty(t, out.Path)

			b := decoded(t, out).Bounds()
			assert.InDelta(t, tt.wantW, b.Dx(), 1)
			assert.InDelta(t, tt.wantH, b.Dy(), 1)
		})
	}
}

func TestPreprocessCorrectsExtremeBrightness(t *testing.T) {
	p := NewPreprocessor(PreprocessConfig{}, nil)

	dark := color.NRGBA{R: 30, G: 30, B: 30, A: 255}
	out, err := p.Prepare(context.Background(), Image{Data: encodePNG(t, 1200, 1200, dark)})
	require.NoError(t, err)
	assert.Greater(t, MeanBrightness(decoded(t, out)), 30.0)

	// washed-out page: light paper over faint text, mean 200.
	page := imaging.Paste(
		imaging.New(1200, 1200, color.NRGBA{R: 250, G: 250, B: 250, A: 255}),
		imaging.New(1200, 600, color.NRGBA{R: 150, G: 150, B: 150, A: 255}),
		image.Pt(0, 600),
	)
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, page, imaging.PNG))
	out, err = p.Prepare(context.Background(), Image{Data: buf.Bytes()})
	require.NoError(t, err)
	res := decoded(t, out)
	paper, _, _, _ := res.At(10, 10).RGBA()
	text, _, _, _ := res.At(10, 1190).RGBA()
	assert.Greater(t, int(paper>>8)-int(text>>8), 100, "contrast between paper and text grows")

	normal := color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	out, err = p.Prepare(context.Background(), Image{Data: encodePNG(t, 1200, 1200, normal)})
	require.NoError(t, err)
	assert.InDelta(t, 128, MeanBrightness(decoded(t, out)), 1)
}

func TestPreprocessReadsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 1000, 1000, color.White), 0o600))

	out, err := NewPreprocessor(PreprocessConfig{}, nil).Prepare(context.Background(), Image{Page: 1, Path: path})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Data)
}

func TestPreprocessRejectsUndecodable(t *testing.T) {
	in := Image{Page: 1, Data: []byte("not an image")}
	out, err := NewPreprocessor(PreprocessConfig{}, nil).Prepare(context.Background(), in)
	assert.ErrorIs(t, err, common.ErrRecognitionFailed)
	assert.Equal(t, in, out)
}

func TestMeanBrightness(t *testing.T) {
	assert.InDelta(t, 255, MeanBrightness(imaging.New(4, 4, color.White)), 0.5)
	assert.InDelta(t, 0, MeanBrightness(imaging.New(4, 4, color.Black)), 0.5)
}
