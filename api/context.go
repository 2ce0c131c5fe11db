// MODUL: api
// ZWECK: Handle-basierte Oberflaeche ueber pipeline.Context fuer Bindings
// INPUT: Handles (Pipeline, Tensor, Parameter), Optionen der Aufrufer
// OUTPUT: Status-Codes, Tensor-Handles, Metadaten und Ausgabe-Puffer
// NEBENEFFEKTE: Prozessweite Registries; Fehlermeldung pro Pipeline
// ABHAENGIGKEITEN: pipeline, param, tensor, metadata
// HINWEISE: Kein Aufruf laesst einen Fehler oder Panic nach aussen durch

// Package api stellt jede Pipeline-Operation als Funktion ueber stabile,
// generationsgepruefte Handles bereit. Fehler werden als Status gemeldet
// und pro Pipeline als Meldung festgehalten (GetErrorMessage).
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/7blacky7/rocal/pipeline"
	"github.com/7blacky7/rocal/tensor"
)

// entry ist eine registrierte Pipeline samt letztem Status.
type entry struct {
	ctx     *pipeline.Context
	created time.Time

	mu     sync.Mutex
	status Status
	msg    string
}

type tensorRef struct {
	owner Handle
	t     *tensor.Tensor
}

var (
	contexts Registry[*entry]
	tensors  Registry[tensorRef]
	params   Registry[any]

	// Fehlermeldung des letzten fehlgeschlagenen Create
	createErr atomic.Pointer[string]
)

func (e *entry) record(h Handle, op string, err error) Status {
	st := statusOf(err)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = st
	if err != nil {
		herr := &HandleError{Op: op, Handle: h, Err: err}
		e.msg = herr.Error()
		slog.Debug("api call failed", "op", op, "handle", h, "status", st, "error", err)
	}
	return st
}

func (e *entry) snapshot() (Status, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.msg
}

func panicError(r any) error {
	return fmt.Errorf("%w: %v", pipeline.ErrRuntime, r)
}

// call fuehrt fn auf der Pipeline zu h aus und wandelt Fehler und Panics in einen Status.
func call(h Handle, op string, fn func(c *pipeline.Context) error) (st Status) {
	e, err := contexts.Get(h)
	if err != nil {
		return StatusContextInvalid
	}
	defer func() {
		if r := recover(); r != nil {
			st = e.record(h, op, panicError(r))
		}
	}()
	return e.record(h, op, fn(e.ctx))
}

// query ist call fuer Aufrufe mit Rueckgabewert.
func query[T any](h Handle, op string, fn func(c *pipeline.Context) (T, error)) (v T, st Status) {
	e, err := contexts.Get(h)
	if err != nil {
		return v, StatusContextInvalid
	}
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, st = zero, e.record(h, op, panicError(r))
		}
	}()
	v, err = fn(e.ctx)
	return v, e.record(h, op, err)
}

// info liest einen Wert ohne Statusaenderung; ungueltige Handles liefern den Nullwert.
func info[T any](h Handle, fn func(c *pipeline.Context) T) (v T) {
	e, err := contexts.Get(h)
	if err != nil {
		return v
	}
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			e.record(h, "info", panicError(r))
		}
	}()
	return fn(e.ctx)
}

// ============================================================================
// Lebenszyklus
// ============================================================================

// Create erstellt eine Pipeline. Bei einem Fehler ist das Ergebnis InvalidHandle,
// die Meldung liefert GetErrorMessage(InvalidHandle).
func Create(batchSize int, mode pipeline.Mode, deviceID, threads int, opts ...pipeline.Option) (h Handle) {
	defer func() {
		if r := recover(); r != nil {
			msg := panicError(r).Error()
			createErr.Store(&msg)
			h = InvalidHandle
		}
	}()

	c, err := newContext(batchSize, mode, deviceID, threads, opts)
	if err != nil {
		msg := (&HandleError{Op: "create", Err: err}).Error()
		createErr.Store(&msg)
		slog.Warn("pipeline create failed", "error", err)
		return InvalidHandle
	}
	return contexts.Add(&entry{ctx: c, created: time.Now()})
}

func newContext(batchSize int, mode pipeline.Mode, deviceID, threads int, opts []pipeline.Option) (*pipeline.Context, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", pipeline.ErrInvalidBatchSize, batchSize)
	}
	if threads < 0 {
		return nil, fmt.Errorf("%w: %d", pipeline.ErrInvalidThreads, threads)
	}
	all := append([]pipeline.Option{
		pipeline.WithBatchSize(batchSize),
		pipeline.WithDevice(mode, deviceID),
		pipeline.WithThreads(threads),
	}, opts...)
	return pipeline.New(all...)
}

// Verify prueft den Aufbau und startet die Hintergrundverarbeitung.
func Verify(h Handle) Status {
	return call(h, "verify", (*pipeline.Context).Verify)
}

// Run stellt den naechsten Batch bereit. Am Epochenende: RunNoMoreData.
func Run(h Handle) (st RunStatus) {
	e, err := contexts.Get(h)
	if err != nil {
		return RunContextInvalid
	}
	defer func() {
		if r := recover(); r != nil {
			e.record(h, "run", panicError(r))
			st = RunRuntimeError
		}
	}()

	err = e.ctx.Run(context.Background())
	st = runStatusOf(err)
	if st != RunNoMoreData {
		e.record(h, "run", err)
	}
	return st
}

// Reset beginnt eine neue Epoche.
func Reset(h Handle) Status {
	return call(h, "reset", (*pipeline.Context).Reset)
}

// Release gibt die Pipeline frei. Das Handle und alle Tensor-Handles der
// Pipeline sind danach ungueltig.
func Release(h Handle) Status {
	st := call(h, "release", (*pipeline.Context).Release)
	if st != StatusOK {
		return st
	}
	if _, err := contexts.Remove(h); err != nil {
		return StatusContextInvalid
	}
	n := tensors.RemoveFunc(func(r tensorRef) bool { return r.owner == h })
	slog.Debug("pipeline handle released", "handle", h, "tensors", n)
	return StatusOK
}

// GetStatus gibt den Status des letzten Aufrufs zurueck.
func GetStatus(h Handle) Status {
	e, err := contexts.Get(h)
	if err != nil {
		return StatusContextInvalid
	}
	st, _ := e.snapshot()
	return st
}

// GetErrorMessage gibt die zuletzt festgehaltene Fehlermeldung zurueck.
func GetErrorMessage(h Handle) string {
	if h == InvalidHandle {
		if p := createErr.Load(); p != nil {
			return *p
		}
		return ""
	}
	e, err := contexts.Get(h)
	if err != nil {
		return err.Error()
	}
	_, msg := e.snapshot()
	return msg
}
