// internal/history/history.go
package history

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tamzrod/ct-gateway/internal/telemetry"
)

const filePrefix = "readings_"

var header = []string{"timestamp", "device_id", "channel", "value", "unit"}

// Writer appends readings to a per-calendar-day CSV file. The header is
// written once, when the day's file is created. Failures are returned
// to the caller; the writer itself never aborts ingestion.
type Writer struct {
	dir string
	log *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

func New(dir string, log *slog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With("component", "history"),
		now: time.Now,
	}
}

func (w *Writer) fileForDate(t time.Time) string {
	return filepath.Join(w.dir, filePrefix+t.Format("20060102")+".csv")
}

// Append writes one reading to today's file.
func (w *Writer) Append(r telemetry.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("history: create dir %s: %w", w.dir, err)
	}

	path := w.fileForDate(w.now())

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if isNew {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("history: write header: %w", err)
		}
		w.log.Info("created daily log file", "path", path)
	}

	if err := cw.Write(row(r)); err != nil {
		return fmt.Errorf("history: write row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func row(r telemetry.Reading) []string {
	return []string{
		r.CapturedAt.Format(telemetry.TimeLayout),
		r.DeviceID,
		strconv.Itoa(r.Channel),
		strconv.FormatFloat(r.Value, 'g', -1, 64),
		r.Unit,
	}
}

// LoadRecent reads back the daily files for the last n days (today
// included) so the retention buffer can be warm-started after a
// restart. Unreadable files and malformed rows are skipped with a
// warning.
func (w *Writer) LoadRecent(days int) ([]telemetry.Reading, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []telemetry.Reading
	today := w.now()

	for i := days - 1; i >= 0; i-- {
		path := w.fileForDate(today.AddDate(0, 0, -i))
		rs, err := readFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			w.log.Warn("skipping unreadable daily log", "path", path, "err", err)
			continue
		}
		out = append(out, rs...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

func readFile(path string) ([]telemetry.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []telemetry.Reading
	for i, rec := range records {
		if i == 0 || len(rec) < 5 {
			continue // header or short row
		}

		// An unparsable timestamp leaves CapturedAt zero; the buffer
		// retains such entries rather than dropping data.
		at, _ := time.ParseInLocation(telemetry.TimeLayout, rec[0], time.Local)
		ch, _ := strconv.Atoi(rec[2])
		val, _ := strconv.ParseFloat(rec[3], 64)

		out = append(out, telemetry.Reading{
			CapturedAt: at,
			DeviceID:   rec[1],
			Channel:    ch,
			Value:      val,
			Unit:       rec[4],
		})
	}
	return out, nil
}
