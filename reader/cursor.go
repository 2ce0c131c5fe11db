package reader

import (
	"log/slog"
	"math/rand/v2"
)

// entry ist ein Sample im Index eines Readers.
type entry struct {
	id     string
	ref    int // Index in den Speicher des Readers
	padded bool
}

// cursor verwaltet Sharding, Auffuellen, Mischen und den Lesezeiger.
// Alle indexbasierten Reader nutzen ihn.
type cursor struct {
	cfg       Config
	members   []entry // echte Samples dieses Shards
	target    int     // Shard-Groesse nach Angleichung an den groessten Shard
	order     []entry // aktuelle Epoche inkl. Auffuellung
	pos       int
	read      int
	epoch     uint64
	lastPad   int
	current   entry
	hasActive bool
}

// init verteilt alle Eintraege auf Shards und baut die erste Epoche.
func (c *cursor) init(all []entry, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(all) == 0 {
		return ErrEmptySource
	}

	c.cfg = cfg
	c.members = c.members[:0]
	for i, e := range all {
		if i%cfg.ShardCount == cfg.ShardID {
			c.members = append(c.members, e)
		}
	}
	c.target = (len(all) + cfg.ShardCount - 1) / cfg.ShardCount
	if len(c.members) == 0 {
		// Mehr Shards als Samples: Shard mit dem ersten Sample fuellen
		slog.Warn("shard received no items, replicating first item", "shard", cfg.ShardID, "shards", cfg.ShardCount)
		c.members = append(c.members, all[0])
	}

	c.epoch = 0
	c.arrange()
	return nil
}

// arrange mischt (optional) und fuellt den Shard und den letzten Batch auf.
func (c *cursor) arrange() {
	members := append([]entry(nil), c.members...)
	if c.cfg.Shuffle {
		rng := rand.New(rand.NewPCG(c.cfg.Seed, c.epoch))
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
	}

	last := members[len(members)-1]
	last.padded = true
	for len(members) < c.target {
		members = append(members, last)
	}

	c.lastPad = 0
	if c.cfg.LastBatchPolicy != PolicyDrop {
		for len(members)%c.cfg.BatchSize != 0 {
			members = append(members, last)
			c.lastPad++
		}
		if c.lastPad > 0 {
			slog.Debug("padded last batch", "shard", c.cfg.ShardID, "replicated", last.id, "count", c.lastPad)
		}
	}

	c.order = members
	c.pos, c.read = 0, 0
}

func (c *cursor) count() int {
	if c.cfg.Loop {
		return len(c.order)
	}
	return len(c.order) - c.read
}

// next liefert das naechste Sample der Epoche.
func (c *cursor) next() (entry, error) {
	if c.pos >= len(c.order) {
		if !c.cfg.Loop {
			return entry{}, ErrNoMoreData
		}
		c.pos = 0
	}
	c.current = c.order[c.pos]
	c.hasActive = true
	c.pos++
	c.read++
	return c.current, nil
}

// reset beginnt eine neue Epoche mit neuer Mischung.
func (c *cursor) reset() {
	c.epoch++
	c.hasActive = false
	c.arrange()
}

func (c *cursor) size() int { return len(c.order) }
