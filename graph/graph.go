// Package graph - Gerichteter azyklischer Graph aus Augmentierungs-Knoten
//
// Knoten werden in Einfuegereihenfolge gesammelt; diese Reihenfolge ist
// zugleich die topologische Ordnung. Nach Finalize ist die Topologie fest.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/tensor"
)

var (
	ErrFinalized         = errors.New("graph: already finalized")
	ErrNotFinalized      = errors.New("graph: not finalized")
	ErrMultipleProducers = errors.New("graph: tensor has more than one producer")
	ErrCycle             = errors.New("graph: node consumes a tensor produced later")
	ErrNoOutput          = errors.New("graph: no output node")
	ErrDanglingBranch    = errors.New("graph: branch does not end in an output")
)

// Graph besitzt die Knoten und die Puffer der Zwischen-Tensoren.
type Graph struct {
	nodes     []node.Node
	finalized bool
	producer  map[*tensor.Tensor]int
	processNS time.Duration
}

func New() *Graph {
	return &Graph{producer: make(map[*tensor.Tensor]int)}
}

// AddNode haengt einen Knoten an. Nach Finalize wird abgelehnt.
func (g *Graph) AddNode(n node.Node) error {
	if g.finalized {
		return fmt.Errorf("%w: cannot add %s", ErrFinalized, n.Name())
	}
	idx := len(g.nodes)
	for _, t := range n.Outputs() {
		if p, ok := g.producer[t]; ok {
			return fmt.Errorf("%w: %s and %s", ErrMultipleProducers, g.nodes[p].Name(), n.Name())
		}
	}
	for _, t := range n.Inputs() {
		if p, ok := g.producer[t]; ok && p >= idx || slices.Contains(n.Outputs(), t) {
			return fmt.Errorf("%w: %s", ErrCycle, n.Name())
		}
	}
	for _, t := range n.Outputs() {
		g.producer[t] = idx
	}
	g.nodes = append(g.nodes, n)
	return nil
}

// Finalize prueft die Topologie, allokiert die Puffer aller Knotenausgaben
// und ruft Create in Einfuegereihenfolge auf.
func (g *Graph) Finalize() error {
	if g.finalized {
		return ErrFinalized
	}
	if len(g.nodes) > 0 {
		if err := g.validate(); err != nil {
			return err
		}
	}

	for _, n := range g.nodes {
		for _, t := range n.Outputs() {
			if !n.IsOutput() {
				t.Info().SetType(tensor.TypeVirtual)
			}
			if err := t.Allocate(); err != nil {
				return fmt.Errorf("graph: allocate output of %s: %w", n.Name(), err)
			}
		}
		if err := n.Create(); err != nil {
			return fmt.Errorf("graph: create %s: %w", n.Name(), err)
		}
		slog.Debug("graph node created", "node", n.Name(), "output", n.IsOutput())
	}

	g.finalized = true
	return nil
}

// validate stellt sicher, dass jeder Knoten zu einem Ausgang fuehrt.
func (g *Graph) validate() error {
	reaches := make([]bool, len(g.nodes))
	found := false
	for i := len(g.nodes) - 1; i >= 0; i-- {
		n := g.nodes[i]
		if n.IsOutput() {
			reaches[i] = true
			found = true
		}
		if !reaches[i] {
			continue
		}
		for _, t := range n.Inputs() {
			if p, ok := g.producer[t]; ok {
				reaches[p] = true
			}
		}
	}
	if !found {
		return ErrNoOutput
	}
	for i, ok := range reaches {
		if !ok {
			return fmt.Errorf("%w: %s", ErrDanglingBranch, g.nodes[i].Name())
		}
	}
	return nil
}

// Process aktualisiert und berechnet alle Knoten fuer einen Batch.
func (g *Graph) Process(ctx context.Context) error {
	if !g.finalized {
		return ErrNotFinalized
	}
	start := time.Now()
	for _, n := range g.nodes {
		if err := n.Update(); err != nil {
			return fmt.Errorf("graph: update %s: %w", n.Name(), err)
		}
		if err := n.Process(ctx); err != nil {
			return fmt.Errorf("graph: process %s: %w", n.Name(), err)
		}
	}
	g.processNS += time.Since(start)
	return nil
}

// Outputs gibt die Ausgabe-Tensoren aller Ausgangsknoten zurueck.
func (g *Graph) Outputs() []*tensor.Tensor {
	var out []*tensor.Tensor
	for _, n := range g.nodes {
		if n.IsOutput() {
			out = append(out, n.Outputs()...)
		}
	}
	return out
}

// Producer gibt den Knoten zurueck, der t erzeugt.
func (g *Graph) Producer(t *tensor.Tensor) (node.Node, bool) {
	p, ok := g.producer[t]
	if !ok {
		return nil, false
	}
	return g.nodes[p], true
}

func (g *Graph) Nodes() []node.Node         { return g.nodes }
func (g *Graph) Len() int                   { return len(g.nodes) }
func (g *Graph) Finalized() bool            { return g.finalized }
func (g *Graph) ProcessTime() time.Duration { return g.processNS }

// Release gibt alle Knotenausgaben frei.
func (g *Graph) Release() {
	for _, n := range g.nodes {
		for _, t := range n.Outputs() {
			t.Release()
		}
	}
	g.nodes = nil
	clear(g.producer)
	g.finalized = false
}
