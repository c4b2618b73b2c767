package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/domain/event"
)

const spawnHP = 100

// generator produces spawn events uniformly inside a square of the given
// radius around a base point, numbering mobs mob_1, mob_2, ...
type generator struct {
	rng     *rand.Rand
	cfg     config.Simulator
	counter int
}

func newGenerator(cfg config.Simulator, seed uint64) *generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &generator{rng: rand.New(rand.NewPCG(seed, seed>>1|1)), cfg: cfg}
}

func (g *generator) next() event.Event {
	g.counter++
	x := g.cfg.BaseX + g.offset()
	y := g.cfg.BaseY + g.offset()
	return event.NewSpawn(fmt.Sprintf("mob_%d", g.counter), x, y, g.cfg.MapID, map[string]any{"hp": spawnHP})
}

// offset is uniform in [-radius, radius].
func (g *generator) offset() int {
	if g.cfg.Radius <= 0 {
		return 0
	}
	return g.rng.IntN(2*g.cfg.Radius+1) - g.cfg.Radius
}
