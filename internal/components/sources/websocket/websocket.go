// Package websocket provides a reference source decoding each text frame
// from a websocket endpoint as one JSON object, reconnecting with exponential
// backoff. Grounded on the teacher's internal/adapters/binance
// streamManager.connect/readLoop, generalized from exchange market-data
// frames to arbitrary JSON objects mapped onto the event field tree.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

const componentName = "source.websocket"

// Source dials URL and emits one Log event per JSON text frame received,
// reconnecting with exponential backoff on any read/dial failure until
// shutdown fires.
type Source struct {
	url string
}

// New builds a websocket Source from cfg["url"].
func New(cfg map[string]any) (component.Source, error) {
	url, _ := cfg["url"].(string)
	if strings.TrimSpace(url) == "" {
		return nil, errs.Config(componentName, errs.WithMessage("url: required websocket endpoint"))
	}
	return &Source{url: url}, nil
}

func (s *Source) Run(ctx context.Context, out component.Sender, shutdown *component.ShutdownSignal) error {
	boff := backoff.NewExponentialBackOff()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-shutdown.C():
			return nil
		default:
		}

		conn, _, err := websocket.Dial(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !s.sleep(ctx, shutdown, boff.NextBackOff()) {
				return nil
			}
			continue
		}

		boff.Reset()
		readErr := s.readLoop(ctx, conn, out)
		_ = conn.Close(websocket.StatusNormalClosure, "")

		if readErr == nil || errors.Is(readErr, context.Canceled) {
			return nil
		}
		if !s.sleep(ctx, shutdown, boff.NextBackOff()) {
			return nil
		}
	}
}

func (s *Source) sleep(ctx context.Context, shutdown *component.ShutdownSignal, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-shutdown.C():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn, out component.Sender) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		e, err := decodeFrame(data)
		if err != nil {
			continue
		}
		if sendErr := out.Send(ctx, e); sendErr != nil {
			// e never reached a receiver on a cancelled or failed Send; we
			// are its last holder and must resolve its finalizer ourselves.
			e.Finalize(finalizer.StatusErrored)
			if ctx.Err() != nil {
				return nil
			}
			return errs.New(componentName, errs.CodeUnavailable, errs.WithKind(errs.KindTransient), errs.WithCause(sendErr))
		}
	}
}

func decodeFrame(data []byte) (*event.Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode frame: %w", componentName, err)
	}
	obj := event.NewObject()
	for k, v := range raw {
		obj.Set(k, jsonToValue(v))
	}
	e := event.NewLog()
	*e.Fields() = event.Obj(obj)
	return e, nil
}

func jsonToValue(v any) event.Value {
	switch t := v.(type) {
	case nil:
		return event.Null()
	case bool:
		return event.Bool(t)
	case float64:
		return event.Float(t)
	case string:
		return event.BytesString(t)
	case []any:
		vals := make([]event.Value, len(t))
		for i, elem := range t {
			vals[i] = jsonToValue(elem)
		}
		return event.Array(vals)
	case map[string]any:
		obj := event.NewObject()
		for k, elem := range t {
			obj.Set(k, jsonToValue(elem))
		}
		return event.Obj(obj)
	default:
		return event.Null()
	}
}
