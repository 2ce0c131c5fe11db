package api

import (
	"slices"
	"strconv"
	"strings"

	"github.com/7blacky7/rocal/pipeline"
)

// ParseHandle liest ein Handle in der Form "index:generation" oder als Zahl.
func ParseHandle(s string) (Handle, error) {
	if idx, gen, ok := strings.Cut(s, ":"); ok {
		i, err := strconv.ParseUint(idx, 10, 32)
		if err != nil {
			return InvalidHandle, err
		}
		g, err := strconv.ParseUint(gen, 10, 32)
		if err != nil {
			return InvalidHandle, err
		}
		return makeHandle(uint32(i), uint32(g)), nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return Handle(n), err
}

func describe(h Handle, e *entry, timing bool) PipelineInfo {
	c := e.ctx
	st, msg := e.snapshot()
	pi := PipelineInfo{
		Handle:       h,
		ID:           c.ID,
		State:        c.State().String(),
		Status:       st.String(),
		Error:        msg,
		BatchSize:    c.Options().BatchSize,
		Remaining:    c.Remaining(),
		OutputWidth:  c.OutputWidth(),
		OutputHeight: c.OutputHeight(),
		Branches:     c.AugmentationBranchCount(),
		CreatedAt:    e.created,
	}
	if timing {
		t := c.Timing()
		pi.Timing = &TimingResponse{
			Load:        Duration{t.LoadTime},
			Decode:      Duration{t.DecodeTime},
			Process:     Duration{t.ProcessTime},
			Transfer:    Duration{t.TransferTime},
			Batches:     t.Batches,
			BatchMean:   Duration{t.BatchMean},
			BatchStdDev: Duration{t.BatchStdDev},
			BatchMax:    Duration{t.BatchMax},
		}
	}
	return pi
}

// List beschreibt alle registrierten Pipelines, sortiert nach Erstellzeit.
func List() []PipelineInfo {
	var out []PipelineInfo
	contexts.Range(func(h Handle, e *entry) bool {
		if e.ctx.State() != pipeline.StateReleased {
			out = append(out, describe(h, e, false))
		}
		return true
	})
	slices.SortStableFunc(out, func(a, b PipelineInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Describe liefert die Beschreibung einer Pipeline samt Zeiten.
func Describe(h Handle) (PipelineInfo, error) {
	e, err := contexts.Get(h)
	if err != nil {
		return PipelineInfo{}, err
	}
	return describe(h, e, true), nil
}
