package game

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeMsgpack writes the board as ten rows of ten small ints, the same
// shape the JSON encoding has.
func (b Board) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(Size); err != nil {
		return err
	}
	for r := 0; r < Size; r++ {
		if err := enc.EncodeArrayLen(Size); err != nil {
			return err
		}
		for c := 0; c < Size; c++ {
			if err := enc.EncodeInt(int64(b[r][c])); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeMsgpack accepts the nested int arrays clients send. Anything that is
// not a 10x10 grid of known cell states is rejected.
func (b *Board) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n == -1 {
		*b = Board{}
		return nil
	}
	if n != Size {
		return errors.Errorf("board: want %d rows, got %d", Size, n)
	}
	var out Board
	for r := 0; r < Size; r++ {
		m, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if m != Size {
			return errors.Errorf("board: row %d: want %d cells, got %d", r, Size, m)
		}
		for c := 0; c < Size; c++ {
			v, err := dec.DecodeInt()
			if err != nil {
				return err
			}
			if v < int(Empty) || v > int(Sunk) {
				return errors.Errorf("board: cell (%d,%d): unknown state %d", r, c, v)
			}
			out[r][c] = Cell(v)
		}
	}
	*b = out
	return nil
}
