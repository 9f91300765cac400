package services

import (
	"math"
	"sort"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
)

// Neighbor is one result of a neighbor query
type Neighbor struct {
	ID       valueobjects.ParticleID
	Distance float64
	// Delta is the shortest vector from the queried point to the neighbor
	Delta valueobjects.Vector2
}

type indexEntry struct {
	id       valueobjects.ParticleID
	position valueobjects.Vector2
}

// NeighborIndex buckets particle positions into a toroidal grid so a radius
// query only inspects the cells that can hold a match. Cells are at least
// cellSize wide; every candidate is distance-checked before it is returned.
// The index is immutable after construction and safe for concurrent queries.
type NeighborIndex struct {
	torus valueobjects.Torus
	cols  int
	rows  int
	cellW float64
	cellH float64
	cells [][]int
	items []indexEntry
	byID  map[valueobjects.ParticleID]int
}

// NewNeighborIndex builds an index over the given particles. cellSize is
// normally the interaction radius.
func NewNeighborIndex(torus valueobjects.Torus, cellSize float64, particles []*entities.Particle) *NeighborIndex {
	if !(cellSize > 0) {
		cellSize = math.Max(torus.Width(), torus.Height())
	}

	cols := int(torus.Width() / cellSize)
	rows := int(torus.Height() / cellSize)
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	idx := &NeighborIndex{
		torus: torus,
		cols:  cols,
		rows:  rows,
		cellW: torus.Width() / float64(cols),
		cellH: torus.Height() / float64(rows),
		cells: make([][]int, cols*rows),
		items: make([]indexEntry, 0, len(particles)),
		byID:  make(map[valueobjects.ParticleID]int, len(particles)),
	}

	for _, p := range particles {
		pos := torus.Wrap(p.Position())
		i := len(idx.items)
		idx.items = append(idx.items, indexEntry{id: p.ID(), position: pos})
		idx.byID[p.ID()] = i
		cell := idx.cellOf(pos)
		idx.cells[cell] = append(idx.cells[cell], i)
	}

	return idx
}

// Len returns the number of indexed particles
func (idx *NeighborIndex) Len() int {
	return len(idx.items)
}

// Contains reports whether the particle is indexed
func (idx *NeighborIndex) Contains(id valueobjects.ParticleID) bool {
	_, ok := idx.byID[id]
	return ok
}

// Query returns every other indexed particle within radius of the indexed
// particle id, nearest first. ok is false when id is not indexed.
func (idx *NeighborIndex) Query(id valueobjects.ParticleID, radius float64) (neighbors []Neighbor, ok bool) {
	i, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return idx.QueryPoint(idx.items[i].position, radius, id), true
}

// QueryPoint returns every indexed particle within radius of point, nearest
// first, skipping exclude.
func (idx *NeighborIndex) QueryPoint(point valueobjects.Vector2, radius float64, exclude valueobjects.ParticleID) []Neighbor {
	if radius < 0 || len(idx.items) == 0 {
		return nil
	}
	point = idx.torus.Wrap(point)

	centerCol, centerRow := idx.colRow(point)
	cols := spanAround(centerCol, int(math.Ceil(radius/idx.cellW)), idx.cols)
	rows := spanAround(centerRow, int(math.Ceil(radius/idx.cellH)), idx.rows)
	radiusSq := radius * radius

	result := make([]Neighbor, 0, 8)
	for _, row := range rows {
		for _, col := range cols {
			for _, i := range idx.cells[row*idx.cols+col] {
				item := idx.items[i]
				if item.id.Equals(exclude) {
					continue
				}

				// Grid membership over-approximates, recheck the real distance
				delta := idx.torus.Delta(point, item.position)
				distSq := delta.LengthSq()
				if distSq <= radiusSq {
					result = append(result, Neighbor{ID: item.id, Distance: math.Sqrt(distSq), Delta: delta})
				}
			}
		}
	}

	sort.Slice(result, func(a, b int) bool {
		if result[a].Distance != result[b].Distance {
			return result[a].Distance < result[b].Distance
		}
		return result[a].ID.Less(result[b].ID)
	})
	return result
}

func (idx *NeighborIndex) colRow(p valueobjects.Vector2) (int, int) {
	col := int(p.X / idx.cellW)
	row := int(p.Y / idx.cellH)
	if col >= idx.cols {
		col = idx.cols - 1
	}
	if row >= idx.rows {
		row = idx.rows - 1
	}
	return col, row
}

func (idx *NeighborIndex) cellOf(p valueobjects.Vector2) int {
	col, row := idx.colRow(p)
	return row*idx.cols + col
}

// spanAround lists the cell coordinates within reach cells of center with
// toroidal wrap, each at most once.
func spanAround(center, reach, n int) []int {
	if 2*reach+1 >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	span := make([]int, 0, 2*reach+1)
	for d := -reach; d <= reach; d++ {
		span = append(span, ((center+d)%n+n)%n)
	}
	return span
}
