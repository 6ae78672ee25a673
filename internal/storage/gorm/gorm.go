// Package gormstorage implements a storage backend on GORM with buffered
// writes drained by a background writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/towsim/pushback/internal/database"
	"github.com/towsim/pushback/internal/logging"
	"github.com/towsim/pushback/internal/model"
	"github.com/towsim/pushback/internal/model/convert"
	"github.com/towsim/pushback/internal/queue"
	"github.com/towsim/pushback/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

// pending is a write buffer shared between recorders and the writer goroutine.
type pending[T any] struct {
	mu sync.Mutex
	q  *queue.Queue[T]
}

func newPending[T any]() *pending[T] {
	return &pending[T]{q: queue.New[T]()}
}

func (p *pending[T]) push(items ...T) {
	p.mu.Lock()
	p.q.Push(items...)
	p.mu.Unlock()
}

func (p *pending[T]) take() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.q.Snapshot()
	p.q.Drain()
	return items
}

func (p *pending[T]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Len()
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps Dependencies

	states   *pending[model.TruckState]
	requests *pending[model.DriveRequest]

	sessionID atomic.Uint64
	writeMu   sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:     deps,
		states:   newPending[model.TruckState](),
		requests: newPending[model.DriveRequest](),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend requires a database")
	}

	b.deps.LogManager.WriteLog("gorm:Init", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine and writes whatever is still buffered.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

// StartSession inserts the session row synchronously so recorded rows can
// reference it.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return errors.New("gorm backend requires a database")
	}

	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}
	b.sessionID.Store(uint64(row.ID))
	b.deps.LogManager.WriteLog("gorm:StartSession", fmt.Sprintf("Session %s stored as %d", s.ID, row.ID), "DEBUG")
	return nil
}

// EndSession writes buffered rows and stamps the session end time.
func (b *Backend) EndSession() error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return core.ErrNoSession
	}
	err := b.Flush()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if uerr := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).
		Update("end_time", time.Now().UTC()).Error; uerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close session: %w", uerr))
	}
	b.sessionID.Store(0)
	return err
}

// SessionID returns the database id of the active session, 0 if none.
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// RecordTruckState converts and queues a truck state.
func (b *Backend) RecordTruckState(s *core.TruckState) error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return core.ErrNoSession
	}
	b.states.push(convert.CoreToTruckState(*s, id))
	return nil
}

// RecordDriveRequest converts and queues a drive request.
func (b *Backend) RecordDriveRequest(r *core.DriveRequest) error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return core.ErrNoSession
	}
	b.requests.push(convert.CoreToDriveRequest(*r, id))
	return nil
}

// Pending returns the number of buffered rows.
func (b *Backend) Pending() int {
	return b.states.len() + b.requests.len()
}

// Flush writes all buffered rows now.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	log := b.deps.LogManager.WriteLog
	return errors.Join(
		writeQueue(b.deps.DB, b.states, "truck states", log),
		writeQueue(b.deps.DB, b.requests, "drive requests", log),
	)
}

// writeQueue writes all items from a buffer to the database in a transaction.
// Items are requeued when the insert fails.
func writeQueue[T any](db *gorm.DB, q *pending[T], name string, log func(string, string, string)) error {
	items := q.take()
	if len(items) == 0 {
		return nil
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.push(items...)
		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.push(items...)
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// writeLoop periodically drains the buffers into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}
