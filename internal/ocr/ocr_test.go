package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, in Input) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return Result{}, f.err
	}
	in.Report(StatusRecognizing, 0.5)
	return Result{Text: f.text}, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]Result
}

func (c *mapCache) Get(_ context.Context, key string) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, res Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = res
	return nil
}

// renderText draws text onto a white PNG
func renderText(t *testing.T, w, h int, lines ...string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	for i, line := range lines {
		d.Dot = fixed.P(10, 30+i*20)
		d.DrawString(line)
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRecognizeRejectsSmallImage(t *testing.T) {
	eng := &fakeEngine{text: "x"}

	_, err := Recognize(context.Background(), eng, Input{Image: make([]byte, 400)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageTooSmall))
	assert.Equal(t, 0, eng.calls)
}

func TestRecognizeFillsEngineName(t *testing.T) {
	eng := &fakeEngine{text: "NAME\nJOHN DOE"}
	var events []Progress

	res, err := Recognize(context.Background(), eng, Input{
		Image:    make([]byte, MinImageBytes),
		Progress: func(p Progress) { events = append(events, p) },
	})

	require.NoError(t, err)
	assert.Equal(t, "NAME\nJOHN DOE", res.Text)
	assert.Equal(t, "fake", res.Engine)
	assert.Equal(t, []Progress{{Status: StatusRecognizing, Progress: 0.5}}, events)
}

func TestRecognizeWrapsEngineError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Recognize(context.Background(), &fakeEngine{err: boom}, Input{Image: make([]byte, 600)})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fake")
}

func TestRecognizeNilEngine(t *testing.T) {
	_, err := Recognize(context.Background(), nil, Input{Image: make([]byte, 600)})
	assert.ErrorIs(t, err, ErrNoEngine)
}

func TestCachedEngine(t *testing.T) {
	eng := &fakeEngine{text: "ABCDE1234F"}
	cache := &mapCache{m: map[string]Result{}}
	cached := Cached(eng, cache)
	in := Input{Image: bytes.Repeat([]byte{1}, 600), Languages: []string{"eng"}}

	first, err := cached.Recognize(context.Background(), in)
	require.NoError(t, err)
	second, err := cached.Recognize(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, eng.calls)
	assert.Len(t, cache.m, 1)
}

func TestCachedNilCache(t *testing.T) {
	eng := &fakeEngine{}
	assert.Same(t, eng, Cached(eng, nil))
}

func TestCacheKeyDependsOnInputs(t *testing.T) {
	a := Input{Image: []byte("one"), Languages: []string{"eng"}}
	b := Input{Image: []byte("two"), Languages: []string{"eng"}}
	c := Input{Image: []byte("one"), Languages: []string{"hin"}}

	assert.NotEqual(t, CacheKey("tesseract", a), CacheKey("tesseract", b))
	assert.NotEqual(t, CacheKey("tesseract", a), CacheKey("tesseract", c))
	assert.NotEqual(t, CacheKey("tesseract", a), CacheKey("gemini", a))
	assert.Equal(t, CacheKey("tesseract", a), CacheKey("tesseract", a))

	psm6 := Input{Image: []byte("one"), Languages: []string{"eng"}, Variables: map[string]string{"tessedit_pageseg_mode": "6"}}
	psm4 := Input{Image: []byte("one"), Languages: []string{"eng"}, Variables: map[string]string{"tessedit_pageseg_mode": "4"}}
	assert.NotEqual(t, CacheKey("tesseract", a), CacheKey("tesseract", psm6))
	assert.NotEqual(t, CacheKey("tesseract", psm6), CacheKey("tesseract", psm4))
}

func TestPreprocessorUpscalesAndGrays(t *testing.T) {
	data := renderText(t, 300, 100, "RAMESH KUMAR")

	out := NewPreprocessor(600).Process(data)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 600, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
	_, isGray := img.(*image.Gray)
	assert.True(t, isGray)
}

func TestPreprocessorFallsBackOnGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte("not an image"), 100)
	assert.Equal(t, garbage, NewPreprocessor(0).Process(garbage))
}

func TestCleanTranscript(t *testing.T) {
	assert.Equal(t, "NAME\nJOHN DOE", cleanTranscript("```text\nNAME\nJOHN DOE\n```"))
	assert.Equal(t, "NAME", cleanTranscript("  NAME \n"))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", MimeType(renderText(t, 50, 50, "x")))
	assert.Equal(t, "image/png", MimeType([]byte("plain text")))
}
