package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"escape_bench/internal/domain"
)

// Journal writes run artifacts under one log directory: episodes.jsonl
// with one record per episode, optional per-episode trajectory files,
// and metrics_summary.json. JSONL files gain a .zst suffix and zstd
// framing when compression is on.
type Journal struct {
	dir      string
	compress bool
}

func New(dir string, compress bool) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return &Journal{dir: dir, compress: compress}, nil
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) WriteEpisodes(records []domain.EpisodeRecord) (string, error) {
	w, path, err := j.newLineWriter("episodes.jsonl")
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := w.write(rec); err != nil {
			_ = w.close()
			return "", fmt.Errorf("write episode %d: %w", rec.Episode, err)
		}
	}
	if err := w.close(); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTrajectory dumps every turn of one episode, one JSON line per
// agent-turn in play order.
func (j *Journal) WriteTrajectory(record domain.EpisodeRecord) (string, error) {
	w, path, err := j.newLineWriter(fmt.Sprintf("trajectory_ep%d.jsonl", record.Episode))
	if err != nil {
		return "", err
	}
	for _, turn := range record.Turns {
		if err := w.write(turn); err != nil {
			_ = w.close()
			return "", fmt.Errorf("write trajectory turn: %w", err)
		}
	}
	if err := w.close(); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSummary writes the aggregate metrics, always as plain JSON.
func (j *Journal) WriteSummary(summary domain.ExperimentSummary) (string, error) {
	path := filepath.Join(j.dir, "metrics_summary.json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metrics summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write metrics summary: %w", err)
	}
	return path, nil
}

type lineWriter struct {
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func (j *Journal) newLineWriter(name string) (*lineWriter, string, error) {
	path := filepath.Join(j.dir, name)
	if j.compress {
		path += ".zst"
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create %s: %w", path, err)
	}
	if !j.compress {
		return &lineWriter{f: f, w: bufio.NewWriterSize(f, 128*1024)}, path, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("zstd writer for %s: %w", path, err)
	}
	return &lineWriter{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, path, nil
}

func (w *lineWriter) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *lineWriter) close() error {
	var firstErr error
	if err := w.w.Flush(); err != nil {
		firstErr = err
	}
	if w.enc != nil {
		if err := w.enc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := w.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
