package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/aether/internal/api"
	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/reconcile"
	"github.com/MrWong99/aether/internal/resilience"
	"github.com/MrWong99/aether/internal/snapshot"
	"github.com/MrWong99/aether/pkg/event"
)

// Variant classifies a [Status] for display.
type Variant string

const (
	VariantInfo    Variant = "info"
	VariantSuccess Variant = "success"
	VariantError   Variant = "error"
)

// Status is the user-facing outcome of the last action.
type Status struct {
	Message string    `json:"message"`
	Variant Variant   `json:"variant"`
	At      time.Time `json:"at"`
}

// CommandFunc issues one command against the campaign server and returns
// the events it produced.
type CommandFunc func(ctx context.Context, c *api.Client) ([]event.Event, error)

// Status returns the last recorded status.
func (a *App) Status() Status {
	a.statMu.Lock()
	defer a.statMu.Unlock()
	return a.status
}

func (a *App) setStatus(s Status) {
	if s.At.IsZero() {
		s.At = time.Now()
	}
	a.statMu.Lock()
	a.status = s
	a.statMu.Unlock()
	if a.onStatus != nil {
		a.onStatus(s)
	}
}

// Do runs a command and feeds its events through the reconciler, the same
// path stream events take. The action names the command in the status
// message and logs. Errors are recorded as an error status and returned.
func (a *App) Do(ctx context.Context, action string, cmd CommandFunc) (reconcile.Result, error) {
	ctx = observe.WithAttrs(observe.WithSource(ctx, "command"), slog.String("action", action))
	log := observe.Logger(ctx)

	events, err := cmd(ctx, a.client)
	if err != nil {
		a.setStatus(errorStatus(action, err))
		log.Warn("command failed", "err", err)
		return reconcile.Result{}, err
	}

	res := a.rec.ApplyBatch(ctx, events)
	a.setStatus(Status{Message: action + ": done", Variant: VariantSuccess})
	log.Info("command applied",
		"events", len(events),
		"applied", res.Applied,
		"duplicates", res.Duplicates,
	)
	return res, nil
}

// Export downloads the full campaign export.
func (a *App) Export(ctx context.Context) (*snapshot.File, error) {
	f, err := a.client.Export(ctx)
	if err != nil {
		a.setStatus(errorStatus("Export", err))
		return nil, err
	}
	a.setStatus(Status{Message: "Export: done", Variant: VariantSuccess})
	return f, nil
}

// Import replaces the campaign on the server with f. An import produces no
// events, so the projection is resynced from a fresh snapshot afterwards.
func (a *App) Import(ctx context.Context, f *snapshot.File) error {
	if err := a.client.Import(ctx, f); err != nil {
		a.setStatus(errorStatus("Import", err))
		return err
	}
	a.reconnector.Resync()
	a.setStatus(Status{Message: "Import: done, resyncing", Variant: VariantSuccess})
	slog.Info("campaign imported", "last_seq", f.LastSeq)
	return nil
}

// ExportSection downloads one export section.
func (a *App) ExportSection(ctx context.Context, s api.Section) (json.RawMessage, error) {
	data, err := a.client.ExportSection(ctx, s)
	if err != nil {
		a.setStatus(errorStatus("Export "+string(s), err))
		return nil, err
	}
	return data, nil
}

// ImportSection uploads one export section and resyncs.
func (a *App) ImportSection(ctx context.Context, s api.Section, data json.RawMessage) error {
	if err := a.client.ImportSection(ctx, s, data); err != nil {
		a.setStatus(errorStatus("Import "+string(s), err))
		return err
	}
	a.reconnector.Resync()
	a.setStatus(Status{Message: "Import " + string(s) + ": done", Variant: VariantSuccess})
	return nil
}

// errorStatus turns an error from the API layer into a user-facing status.
func errorStatus(action string, err error) Status {
	var apiErr *api.Error
	msg := err.Error()
	switch {
	case errors.Is(err, api.ErrInvalidInput):
		msg = fmt.Sprintf("%s: %v", action, err)
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		msg = action + ": not authorized, check the token"
	case errors.As(err, &apiErr) && apiErr.Forbidden():
		msg = action + ": not allowed for this role"
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		msg = action + ": " + apiErr.Detail
	case errors.Is(err, resilience.ErrOpen):
		msg = action + ": server unavailable, try again shortly"
	case errors.Is(err, context.DeadlineExceeded):
		msg = action + ": request timed out"
	default:
		msg = action + ": " + msg
	}
	return Status{Message: msg, Variant: VariantError}
}
