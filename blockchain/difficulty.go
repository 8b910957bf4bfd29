package blockchain

import "math/bits"

// LeadingZeroBits counts the zero bits at the start of hash.
func LeadingZeroBits(hash Hash32) int {
	n := 0
	for _, b := range hash {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

// BlockHashMeetsDifficulty reports whether hash starts with at least
// difficulty zero bits. Difficulty 0 accepts every hash.
func BlockHashMeetsDifficulty(hash Hash32, difficulty uint8) bool {
	return LeadingZeroBits(hash) >= int(difficulty)
}
