package storage

import (
	"errors"

	"github.com/towsim/pushback/pkg/core"
)

// Multi fans every call out to all of its backends. Errors are joined; a
// failing backend never stops the others from receiving the call.
type Multi []Backend

func (m Multi) each(fn func(Backend) error) error {
	var errs []error
	for _, b := range m {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Init() error {
	return m.each(Backend.Init)
}

// Close closes the backends in reverse order.
func (m Multi) Close() error {
	var errs []error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) StartSession(s *core.Session) error {
	return m.each(func(b Backend) error { return b.StartSession(s) })
}

func (m Multi) EndSession() error {
	return m.each(Backend.EndSession)
}

func (m Multi) RecordTruckState(s *core.TruckState) error {
	return m.each(func(b Backend) error { return b.RecordTruckState(s) })
}

func (m Multi) RecordDriveRequest(r *core.DriveRequest) error {
	return m.each(func(b Backend) error { return b.RecordDriveRequest(r) })
}

// Uploadable returns the first backend that exports a file.
func (m Multi) Uploadable() (Uploadable, bool) {
	for _, b := range m {
		if u, ok := AsUploadable(b); ok {
			return u, true
		}
	}
	return nil, false
}

// AsUploadable reports whether b, or any backend inside a Multi, exports files.
func AsUploadable(b Backend) (Uploadable, bool) {
	if m, ok := b.(Multi); ok {
		return m.Uploadable()
	}
	u, ok := b.(Uploadable)
	return u, ok
}
