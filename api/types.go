// types.go - Typen des Status-Servers (JSON) und gemeinsame Fehler
// Enthaelt: StatusError, Duration, PipelineInfo, ListResponse, TimingResponse
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the rocal server logs for details"
	}
}

// Duration ist ein JSON-serialisierbarer time.Duration Wrapper
type Duration struct {
	time.Duration
}

// MarshalJSON serialisiert Duration zu JSON
func (d Duration) MarshalJSON() ([]byte, error) {
	if d.Duration < 0 {
		return []byte("-1"), nil
	}
	return []byte("\"" + d.Duration.String() + "\""), nil
}

// UnmarshalJSON akzeptiert Strings ("1.5s") und Zahlen in Sekunden
func (d *Duration) UnmarshalJSON(b []byte) (err error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case float64:
		if t < 0 {
			d.Duration = time.Duration(math.MaxInt64)
		} else {
			d.Duration = time.Duration(t * float64(time.Second))
		}
	case string:
		d.Duration, err = time.ParseDuration(t)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported duration type: '%s'", reflect.TypeOf(v))
	}

	return nil
}

// TimingResponse sind die Stufenzeiten einer Pipeline.
type TimingResponse struct {
	Load        Duration `json:"load"`
	Decode      Duration `json:"decode"`
	Process     Duration `json:"process"`
	Transfer    Duration `json:"transfer"`
	Batches     int      `json:"batches"`
	BatchMean   Duration `json:"batch_mean"`
	BatchStdDev Duration `json:"batch_stddev"`
	BatchMax    Duration `json:"batch_max"`
}

// PipelineInfo beschreibt eine registrierte Pipeline.
type PipelineInfo struct {
	Handle       Handle          `json:"handle"`
	ID           string          `json:"id"`
	State        string          `json:"state"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	BatchSize    int             `json:"batch_size"`
	Remaining    int             `json:"remaining"`
	OutputWidth  int             `json:"output_width,omitempty"`
	OutputHeight int             `json:"output_height,omitempty"`
	Branches     int             `json:"branches"`
	CreatedAt    time.Time       `json:"created_at"`
	Timing       *TimingResponse `json:"timing,omitempty"`
}

// ListResponse ist die Antwort auf GET /api/pipelines.
type ListResponse struct {
	Pipelines []PipelineInfo `json:"pipelines"`
}
