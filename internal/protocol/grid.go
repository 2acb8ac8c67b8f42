package protocol

import (
	"encoding/binary"
	"fmt"
)

// Cell byte layout: bit 0 mine, bit 1 revealed, bit 2 flagged, bits 3-6
// neighbor count.
const (
	cellMineBit     = 1 << 0
	cellRevealedBit = 1 << 1
	cellFlaggedBit  = 1 << 2
	cellNeighborPos = 3
	cellNeighborMsk = 0x0F
)

// coordSize is the packed size of a (row, col) pair.
const coordSize = 4

// changeSize is the packed size of a CellChange record.
const changeSize = 5

// PackCell packs the flag bits and neighbor count of c into one byte.
// FlagColor travels separately.
func PackCell(c Cell) byte {
	var b byte
	if c.Mine {
		b |= cellMineBit
	}
	if c.Revealed {
		b |= cellRevealedBit
	}
	if c.Flagged {
		b |= cellFlaggedBit
	}
	b |= (c.NeighborMines & cellNeighborMsk) << cellNeighborPos
	return b
}

// UnpackCell is the inverse of PackCell.
func UnpackCell(b byte) (Cell, error) {
	c := Cell{
		Mine:          b&cellMineBit != 0,
		Revealed:      b&cellRevealedBit != 0,
		Flagged:       b&cellFlaggedBit != 0,
		NeighborMines: (b >> cellNeighborPos) & cellNeighborMsk,
	}
	if c.NeighborMines > MaxNeighbors {
		return Cell{}, fmt.Errorf("neighbor count %d exceeds %d", c.NeighborMines, MaxNeighbors)
	}
	return c, nil
}

// packBoard flattens the board row-major into one byte per cell.
func packBoard(board [][]Cell, rows, cols int) []byte {
	out := make([]byte, 0, rows*cols)
	for _, row := range board {
		for _, cell := range row {
			out = append(out, PackCell(cell))
		}
	}
	return out
}

// unpackBoard rebuilds a rows x cols board from packed cell bytes.
func unpackBoard(data []byte, rows, cols int) ([][]Cell, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("board has %d cells, declared %dx%d", len(data), rows, cols)
	}
	board := make([][]Cell, rows)
	for r := 0; r < rows; r++ {
		board[r] = make([]Cell, cols)
		for c := 0; c < cols; c++ {
			cell, err := UnpackCell(data[r*cols+c])
			if err != nil {
				return nil, fmt.Errorf("cell (%d,%d): %w", r, c, err)
			}
			board[r][c] = cell
		}
	}
	return board, nil
}

// packCoords writes each coordinate as two little-endian uint16 values.
func packCoords(coords []Coord) []byte {
	if len(coords) == 0 {
		return nil
	}
	out := make([]byte, len(coords)*coordSize)
	for i, c := range coords {
		binary.LittleEndian.PutUint16(out[i*coordSize:], uint16(c.Row))
		binary.LittleEndian.PutUint16(out[i*coordSize+2:], uint16(c.Col))
	}
	return out
}

func unpackCoords(data []byte) ([]Coord, error) {
	if len(data)%coordSize != 0 {
		return nil, fmt.Errorf("coordinate block of %d bytes is not a multiple of %d", len(data), coordSize)
	}
	if len(data) == 0 {
		return nil, nil
	}
	coords := make([]Coord, len(data)/coordSize)
	for i := range coords {
		coords[i] = Coord{
			Row: int(binary.LittleEndian.Uint16(data[i*coordSize:])),
			Col: int(binary.LittleEndian.Uint16(data[i*coordSize+2:])),
		}
	}
	return coords, nil
}

// packChanges writes each change as row u16, col u16, type u8.
func packChanges(changes []CellChange) []byte {
	if len(changes) == 0 {
		return nil
	}
	out := make([]byte, len(changes)*changeSize)
	for i, ch := range changes {
		off := i * changeSize
		binary.LittleEndian.PutUint16(out[off:], uint16(ch.Row))
		binary.LittleEndian.PutUint16(out[off+2:], uint16(ch.Col))
		out[off+4] = byte(ch.Type)
	}
	return out
}

func unpackChanges(data []byte) ([]CellChange, error) {
	if len(data)%changeSize != 0 {
		return nil, fmt.Errorf("update block of %d bytes is not a multiple of %d", len(data), changeSize)
	}
	if len(data) == 0 {
		return nil, nil
	}
	changes := make([]CellChange, len(data)/changeSize)
	for i := range changes {
		off := i * changeSize
		changes[i] = CellChange{
			Row:  int(binary.LittleEndian.Uint16(data[off:])),
			Col:  int(binary.LittleEndian.Uint16(data[off+2:])),
			Type: CellType(data[off+4]),
		}
		if !changes[i].Type.Valid() {
			return nil, fmt.Errorf("update %d has unknown cell type %d", i, data[off+4])
		}
	}
	return changes, nil
}
