// internal/uplink/ftplink/ftplink.go
package ftplink

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

const (
	uploadInterval = 30 * time.Second
	remoteSubdir   = "CT_Data"
)

var csvHeader = []string{"timestamp", "device_id", "channel", "value", "unit"}

// session is the slice of a file-transfer connection the uplink needs.
// The production implementation lives in ftp.go; tests inject fakes.
type session interface {
	ChangeDir(path string) error
	MakeDir(path string) error
	Retrieve(name string) (io.ReadCloser, error)
	Store(name string, r io.Reader) error
	Quit() error
}

type dialFunc func(cfg config.FTPConfig) (session, error)

// Uplink queues readings in memory and periodically merges them into a
// per-day remote file: download the existing file, stack the new rows
// under it, overwrite. The transport has no atomic append, so the
// whole file is replaced each cycle.
type Uplink struct {
	cfg  config.FTPConfig
	log  *slog.Logger
	dial dialFunc
	now  func() time.Time

	mu      sync.Mutex
	pending []telemetry.Reading
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(cfg config.FTPConfig, log *slog.Logger) *Uplink {
	return &Uplink{
		cfg:  cfg,
		log:  log.With("uplink", uplink.BatchFile),
		dial: dialFTP,
		now:  time.Now,
	}
}

func (u *Uplink) Kind() uplink.Kind { return uplink.BatchFile }

// Start launches the upload timer. No network access happens until the
// first interval elapses with queued rows.
func (u *Uplink) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return nil
	}
	u.running = true
	u.stop = make(chan struct{})
	u.done = make(chan struct{})

	go u.uploadLoop(u.stop, u.done)
	u.log.Info("batch uploader started", "interval", uploadInterval)
	return nil
}

func (u *Uplink) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	close(u.stop)
	done := u.done
	u.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		u.log.Warn("upload loop did not exit in time")
	}
	u.log.Info("batch uploader stopped")
}

func (u *Uplink) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Deliver queues one reading for the next upload cycle. No network
// access here.
func (u *Uplink) Deliver(r telemetry.Reading) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = append(u.pending, r)
	return nil
}

// Snapshot returns a copy of the rows waiting for upload.
func (u *Uplink) Snapshot() any {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]telemetry.Reading, len(u.pending))
	copy(out, u.pending)
	return out
}

func (u *Uplink) PendingCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

func (u *Uplink) uploadLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(uploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := u.Flush(); err != nil {
				u.log.Error("batch upload failed", "err", err)
			}
		}
	}
}

// Flush performs one upload cycle immediately. Called by the timer, at
// shutdown, and by tests.
//
// The pending queue is snapshotted and cleared up front. A failure
// while establishing the session (dial, login, directory changes) puts
// the rows back; once the remote merge begins a failure loses this
// cycle's rows, an accepted limitation of the overwrite protocol.
func (u *Uplink) Flush() error {
	batch := u.takePending()
	if len(batch) == 0 {
		return nil
	}

	sess, err := u.dial(u.cfg)
	if err != nil {
		u.restorePending(batch)
		return fmt.Errorf("ftplink: connect: %w", err)
	}
	defer sess.Quit()

	if err := sess.ChangeDir(u.cfg.RemoteDir); err != nil {
		u.restorePending(batch)
		return fmt.Errorf("ftplink: chdir %s: %w", u.cfg.RemoteDir, err)
	}

	if err := u.enterSubdir(sess); err != nil {
		u.restorePending(batch)
		return err
	}

	name := fmt.Sprintf("ct_data_%s.csv", u.now().Format("20060102"))

	prior, err := downloadExisting(sess, name)
	if err != nil {
		return fmt.Errorf("ftplink: download %s: %w", name, err)
	}

	content := mergeRows(prior, batch)
	if err := sess.Store(name, strings.NewReader(content)); err != nil {
		return fmt.Errorf("ftplink: store %s: %w", name, err)
	}

	u.log.Info("stacked upload complete", "file", remoteSubdir+"/"+name, "rows", len(batch))
	return nil
}

func (u *Uplink) enterSubdir(sess session) error {
	err := sess.ChangeDir(remoteSubdir)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("ftplink: chdir %s: %w", remoteSubdir, err)
	}
	if err := sess.MakeDir(remoteSubdir); err != nil {
		return fmt.Errorf("ftplink: mkdir %s: %w", remoteSubdir, err)
	}
	if err := sess.ChangeDir(remoteSubdir); err != nil {
		return fmt.Errorf("ftplink: chdir %s: %w", remoteSubdir, err)
	}
	return nil
}

func (u *Uplink) takePending() []telemetry.Reading {
	u.mu.Lock()
	defer u.mu.Unlock()
	batch := u.pending
	u.pending = nil
	return batch
}

func (u *Uplink) restorePending(batch []telemetry.Reading) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = append(batch, u.pending...)
}

// downloadExisting fetches the current remote rows for the day. A
// missing file means an empty prior day; any other transfer error
// aborts the attempt.
func downloadExisting(sess session, name string) ([][]string, error) {
	rc, err := sess.Retrieve(name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}

// mergeRows builds the full replacement file: header, every prior row,
// then the new batch.
func mergeRows(prior [][]string, batch []telemetry.Reading) string {
	var sb strings.Builder
	cw := csv.NewWriter(&sb)

	if len(prior) == 0 {
		cw.Write(csvHeader)
	} else {
		for _, row := range prior {
			cw.Write(row)
		}
	}

	for _, r := range batch {
		cw.Write([]string{
			r.CapturedAt.Format(telemetry.TimeLayout),
			r.DeviceID,
			strconv.Itoa(r.Channel),
			strconv.FormatFloat(r.Value, 'g', -1, 64),
			r.Unit,
		})
	}

	cw.Flush()
	return sb.String()
}
