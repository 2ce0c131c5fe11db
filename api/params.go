package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/7blacky7/rocal/param"
)

// ParamHandle verweist auf einen registrierten Parameter.
type ParamHandle Handle

// NoParam waehlt den Default des Knotens.
const NoParam ParamHandle = 0

var errWrongParameter = errors.New("api: parameter has wrong value type")

func addParam[T param.Number](p param.Parameter[T], err error) ParamHandle {
	if err != nil {
		slog.Warn("parameter create failed", "error", err)
		return NoParam
	}
	return ParamHandle(params.Add(p))
}

// paramOf loest ein Handle auf. NoParam ergibt nil (Default des Knotens).
func paramOf[T param.Number](h ParamHandle) (param.Parameter[T], error) {
	if h == NoParam {
		return nil, nil
	}
	v, err := params.Get(Handle(h))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errWrongParameter, err)
	}
	p, ok := v.(param.Parameter[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s", errWrongParameter, Handle(h))
	}
	return p, nil
}

func updateParam[T param.Number](h ParamHandle, fn func(param.Parameter[T]) error) Status {
	if _, err := params.Get(Handle(h)); err != nil {
		return StatusUpdateParameterFailed
	}
	p, err := paramOf[T](h)
	if err == nil {
		err = fn(p)
	}
	if err != nil {
		slog.Warn("parameter update failed", "handle", Handle(h), "error", err)
	}
	return statusOf(err)
}

// ============================================================================
// Erzeugen
// ============================================================================

func CreateIntParameter(v int) ParamHandle {
	return addParam[int](param.NewSimple(v), nil)
}

func CreateFloatParameter(v float32) ParamHandle {
	return addParam[float32](param.NewSimple(v), nil)
}

// CreateIntUniformRand zieht pro Sample gleichverteilt aus [start, end].
func CreateIntUniformRand(start, end int) ParamHandle {
	p, err := param.NewUniform(start, end)
	return addParam[int](p, err)
}

func CreateFloatUniformRand(start, end float32) ParamHandle {
	p, err := param.NewUniform(start, end)
	return addParam[float32](p, err)
}

// CreateIntRand zieht aus values mit den relativen Haeufigkeiten frequencies.
func CreateIntRand(values []int, frequencies []float64) ParamHandle {
	p, err := param.NewDiscrete(values, frequencies)
	return addParam[int](p, err)
}

func CreateFloatRand(values []float32, frequencies []float64) ParamHandle {
	p, err := param.NewDiscrete(values, frequencies)
	return addParam[float32](p, err)
}

// ReleaseParameter gibt das Handle frei. Knoten, die den Parameter nutzen, behalten ihn.
func ReleaseParameter(h ParamHandle) Status {
	if _, err := params.Remove(Handle(h)); err != nil {
		return StatusUpdateParameterFailed
	}
	return StatusOK
}

// ============================================================================
// Aendern und Lesen
// ============================================================================

func UpdateIntParameter(v int, h ParamHandle) Status {
	return updateParam(h, func(p param.Parameter[int]) error { return param.SetFixed(p, v) })
}

func UpdateFloatParameter(v float32, h ParamHandle) Status {
	return updateParam(h, func(p param.Parameter[float32]) error { return param.SetFixed(p, v) })
}

func UpdateIntUniformRand(start, end int, h ParamHandle) Status {
	return updateParam(h, func(p param.Parameter[int]) error { return param.UpdateUniform(p, start, end) })
}

func UpdateFloatUniformRand(start, end float32, h ParamHandle) Status {
	return updateParam(h, func(p param.Parameter[float32]) error { return param.UpdateUniform(p, start, end) })
}

func UpdateIntRand(values []int, frequencies []float64, h ParamHandle) Status {
	return updateParam(h, func(p param.Parameter[int]) error { return param.UpdateDiscrete(p, values, frequencies) })
}

func UpdateFloatRand(values []float32, frequencies []float64, h ParamHandle) Status {
	return updateParam(h, func(p param.Parameter[float32]) error { return param.UpdateDiscrete(p, values, frequencies) })
}

// GetIntValue gibt den zuletzt gezogenen Wert zurueck.
func GetIntValue(h ParamHandle) (int, Status) {
	p, err := paramOf[int](h)
	if err != nil {
		return 0, statusOf(err)
	}
	if p == nil {
		return 0, StatusContextInvalid
	}
	return p.Get(), StatusOK
}

func GetFloatValue(h ParamHandle) (float32, Status) {
	p, err := paramOf[float32](h)
	if err != nil {
		return 0, statusOf(err)
	}
	if p == nil {
		return 0, StatusContextInvalid
	}
	return p.Get(), StatusOK
}

// SetSeed setzt den globalen Seed aller danach erzeugten Zufallsparameter.
func SetSeed(seed uint64) { param.SetSeed(seed) }

func GetSeed() uint64 { return param.Seed() }
