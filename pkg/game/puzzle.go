package game

import (
	"math/rand/v2"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
)

const (
	size  = constants.BoardSize
	box   = constants.BoxSize
	cells = constants.BoardCells
)

// Puzzle is a completed grid together with the cells revealed as clues.
type Puzzle struct {
	Solution [cells]int8
	Fixed    [cells]bool
}

// GeneratePuzzle fills a grid by randomized backtracking and reveals clues
// randomly chosen cells of it.
func GeneratePuzzle(rng *rand.Rand, clues int) Puzzle {
	var p Puzzle
	fill(&p.Solution, 0, rng)

	if clues > cells {
		clues = cells
	}
	for _, idx := range rng.Perm(cells)[:max(clues, 0)] {
		p.Fixed[idx] = true
	}
	return p
}

func fill(grid *[cells]int8, idx int, rng *rand.Rand) bool {
	if idx == cells {
		return true
	}
	digits := [size]int8{1, 2, 3, 4, 5, 6, 7, 8, 9}
	rng.Shuffle(len(digits), func(i, j int) { digits[i], digits[j] = digits[j], digits[i] })
	for _, d := range digits {
		if !allowed(grid, idx, d) {
			continue
		}
		grid[idx] = d
		if fill(grid, idx+1, rng) {
			return true
		}
	}
	grid[idx] = 0
	return false
}

// allowed reports whether d can go at idx without repeating in its row,
// column or box.
func allowed(grid *[cells]int8, idx int, d int8) bool {
	row, col := idx/size, idx%size
	for i := 0; i < size; i++ {
		if grid[row*size+i] == d || grid[i*size+col] == d {
			return false
		}
	}
	r0, c0 := row/box*box, col/box*box
	for r := r0; r < r0+box; r++ {
		for c := c0; c < c0+box; c++ {
			if grid[r*size+c] == d {
				return false
			}
		}
	}
	return true
}

// ValidSolution reports whether grid is a complete, consistent solution.
func ValidSolution(grid [cells]int8) bool {
	for idx, d := range grid {
		if d < 1 || d > size {
			return false
		}
		grid[idx] = 0
		ok := allowed(&grid, idx, d)
		grid[idx] = d
		if !ok {
			return false
		}
	}
	return true
}
