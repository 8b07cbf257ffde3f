package disk

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/icza/backscanner"

	"driftdb/pkg/config"
	"driftdb/pkg/dpage"
	"driftdb/pkg/logging"
)

// Request is one unit of scheduled I/O: a read or write of exactly one
// page, with a channel the scheduler signals once the operation
// (successfully or not) completes.
type Request struct {
	IsWrite bool
	PageID  dpage.ID
	Data    []byte
	Done    chan error

	id string // uuid trace tag, assigned by Schedule
}

// Scheduler queues disk requests and dispatches them to a DiskManager
// from a single background worker goroutine, so requests are honored
// in strict FIFO order regardless of which goroutine submitted them.
type Scheduler struct {
	dm        DiskManager
	queue     chan *Request
	done      chan struct{}
	trace     *os.File
	tracePath string
}

// NewScheduler starts a scheduler's background worker over dm. If
// config.TracePath is non-empty, every dispatched request is appended
// to it as a trace line.
func NewScheduler(dm DiskManager) *Scheduler {
	s := &Scheduler{
		dm:    dm,
		queue: make(chan *Request, 256),
		done:  make(chan struct{}),
	}
	if config.TracePath != "" {
		if f, err := os.OpenFile(config.TracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			s.trace = f
			s.tracePath = config.TracePath
		} else {
			logging.Component("disk").Warnf("could not open trace file %q: %v", config.TracePath, err)
		}
	}
	go s.startWorker()
	return s
}

// Schedule enqueues a request. The caller must not touch r.Data until
// r.Done receives a value.
func (s *Scheduler) Schedule(r *Request) {
	r.id = uuid.NewString()
	s.queue <- r
}

// Shutdown stops the background worker after any already-queued
// requests drain.
func (s *Scheduler) Shutdown() {
	close(s.queue)
	<-s.done
	if s.trace != nil {
		s.trace.Close()
	}
}

func (s *Scheduler) startWorker() {
	defer close(s.done)
	log := logging.Component("disk")
	for r := range s.queue {
		var err error
		if r.IsWrite {
			err = s.dm.WritePage(r.PageID, r.Data)
		} else {
			err = s.dm.ReadPage(r.PageID, r.Data)
		}
		s.writeTrace(r, err)
		if err != nil {
			log.Errorf("request %s (page %d, write=%v) failed: %v", r.id, r.PageID, r.IsWrite, err)
		}
		r.Done <- err
	}
}

func (s *Scheduler) writeTrace(r *Request, err error) {
	if s.trace == nil {
		return
	}
	op := "read"
	if r.IsWrite {
		op = "write"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	line := fmt.Sprintf("%s %s page=%d op=%s status=%s\n", time.Now().UTC().Format(time.RFC3339Nano), r.id, r.PageID, op, status)
	if _, werr := s.trace.WriteString(line); werr != nil {
		logging.Component("disk").Warnf("could not append trace line: %v", werr)
	}
}

// TailTrace returns the last n lines appended to the trace file, most
// recent last, by scanning backward from the end of the file the way
// the teacher's recovery manager rewinds its log to find the last
// checkpoint.
func TailTrace(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	scanner := backscanner.New(f, int(info.Size()))
	lines := make([]string, 0, n)
	for len(lines) < n {
		line, _, err := scanner.LineBytes()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		lines = append([]string{string(line)}, lines...)
	}
	return lines, nil
}
