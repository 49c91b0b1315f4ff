package redbank

import "math/bits"

// BitmapCapacity is the number of market slots a Bitmap can address.
const BitmapCapacity = 128

// Bitmap flags participation per market index.
type Bitmap [2]uint64

func (b Bitmap) Get(i uint32) (bool, error) {
	if i >= BitmapCapacity {
		return false, ErrBitOutOfRange
	}
	return b[i/64]&(1<<(i%64)) != 0, nil
}

func (b *Bitmap) Set(i uint32) error {
	if i >= BitmapCapacity {
		return ErrBitOutOfRange
	}
	b[i/64] |= 1 << (i % 64)
	return nil
}

func (b *Bitmap) Unset(i uint32) error {
	if i >= BitmapCapacity {
		return ErrBitOutOfRange
	}
	b[i/64] &^= 1 << (i % 64)
	return nil
}

func (b Bitmap) IsZero() bool { return b[0] == 0 && b[1] == 0 }

func (b Bitmap) Count() int { return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1]) }

// Indices lists the set bits in ascending order.
func (b Bitmap) Indices() []uint32 {
	out := make([]uint32, 0, b.Count())
	for word := 0; word < len(b); word++ {
		w := b[word]
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, uint32(word*64+bit))
			w &^= 1 << bit
		}
	}
	return out
}
