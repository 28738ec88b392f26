package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// TextCache stores recognized text by key. Implementations must be safe for
// concurrent use.
type TextCache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, res Result) error
}

// CachedEngine skips recognition for images it has already read.
// Cache errors are logged and never fail a recognition.
type CachedEngine struct {
	engine Engine
	cache  TextCache
}

// Cached wraps an engine with a text cache. A nil cache returns the engine unchanged.
func Cached(engine Engine, cache TextCache) Engine {
	if cache == nil {
		return engine
	}
	return &CachedEngine{engine: engine, cache: cache}
}

func (c *CachedEngine) Name() string { return c.engine.Name() }

func (c *CachedEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	key := CacheKey(c.engine.Name(), in)

	if res, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("[OCR] cache read failed", "error", err)
	} else if ok {
		in.Report(StatusRecognizing, 1)
		return res, nil
	}

	res, err := c.engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, err
	}

	if err := c.cache.Set(ctx, key, res); err != nil {
		slog.Warn("[OCR] cache write failed", "error", err)
	}
	return res, nil
}

// CacheKey identifies a recognition by image content, engine, languages and
// engine variables
func CacheKey(engine string, in Input) string {
	h := sha256.New()
	h.Write(in.Image)
	keys := make([]string, 0, len(in.Variables))
	for k := range in.Variables {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%s", k, in.Variables[k])
	}
	return "ocr:" + engine + ":" + strings.Join(in.Languages, "+") + ":" + hex.EncodeToString(h.Sum(nil))
}
