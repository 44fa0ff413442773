package slides

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// HashFunc hashes one frame file.
type HashFunc func(path string) (Hash, error)

// HashFrames hashes paths with at most workers goroutines. Results are
// index-aligned with paths so callers reduce them in capture order.
func HashFrames(ctx context.Context, paths []string, workers int, hash HashFunc) ([]Hash, error) {
	if hash == nil {
		hash = HashFile
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]Hash, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := hash(path)
			if err != nil {
				return err
			}
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFrames returns the frame_NNNNNN.png files in dir in capture order.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	var frames []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		frames = append(frames, filepath.Join(dir, name))
	}
	sort.Strings(frames)
	return frames, nil
}

// BuildSamples pairs frame paths with their hashes and timestamps. Frame i
// (0-based) was sampled at offset + i/fps seconds.
func BuildSamples(paths []string, hashes []Hash, fps, offset float64) []FrameSample {
	if fps <= 0 {
		fps = 1
	}
	samples := make([]FrameSample, len(paths))
	for i, path := range paths {
		samples[i] = FrameSample{
			Index:     i,
			Timestamp: offset + float64(i)/fps,
			Path:      path,
			Hash:      hashes[i],
		}
	}
	return samples
}
