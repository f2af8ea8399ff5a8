package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/glowmesh/fusion-engine/internal/models"
	"github.com/glowmesh/fusion-engine/internal/utils"
)

// Format selects the on-disk detection encoding.
type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatCSV       Format = "csv"
)

// FileExporter appends detections to a file in JSON-lines or CSV form.
// Safe for concurrent use.
type FileExporter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	csv    *csv.Writer
	format Format
}

// NewFileExporter creates (or appends to) a detections file under dir. The
// filename carries the start date so restarts don't clobber prior runs.
func NewFileExporter(dir string, format Format) (*FileExporter, error) {
	if format != FormatJSONLines && format != FormatCSV {
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", dir, err)
	}

	ext := "jsonl"
	if format == FormatCSV {
		ext = "csv"
	}
	name := filepath.Join(dir, fmt.Sprintf("detections_%s.%s", time.Now().UTC().Format("20060102"), ext))

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open export file %s: %w", name, err)
	}

	e := &FileExporter{file: f, writer: bufio.NewWriter(f), format: format}
	if format == FormatCSV {
		e.csv = csv.NewWriter(e.writer)
		if info, err := f.Stat(); err == nil && info.Size() == 0 {
			e.csv.Write([]string{"timestamp", "id", "kind", "confidence", "severity", "sensor_count", "correlation_score", "entropy_deviation"})
		}
	}
	return e, nil
}

func (e *FileExporter) Publish(_ context.Context, d models.Detection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.format {
	case FormatCSV:
		record := []string{
			utils.FormatRFC3339(d.Timestamp),
			d.ID,
			string(d.Kind),
			strconv.FormatFloat(d.Confidence, 'f', -1, 64),
			string(d.Severity),
			strconv.Itoa(len(d.Sensors)),
			strconv.FormatFloat(d.CorrelationScore, 'f', -1, 64),
			strconv.FormatFloat(d.EntropyDeviation, 'f', -1, 64),
		}
		if err := e.csv.Write(record); err != nil {
			return fmt.Errorf("write detection %s: %w", d.ID, err)
		}
		e.csv.Flush()
		if err := e.csv.Error(); err != nil {
			return fmt.Errorf("flush detection %s: %w", d.ID, err)
		}
	default:
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal detection %s: %w", d.ID, err)
		}
		if _, err := e.writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write detection %s: %w", d.ID, err)
		}
	}
	return e.writer.Flush()
}

func (e *FileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.csv != nil {
		e.csv.Flush()
	}
	if err := e.writer.Flush(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}
