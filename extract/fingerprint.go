package extract

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// nearDuplicateThreshold is the Hamming distance at or under which two
// question texts are considered re-renders of the same question.
const nearDuplicateThreshold = 3

// fingerprint computes a 64-bit SimHash of a question text. Uses FNV-64a
// on word-level tokens with bit vector accumulation, so small wording
// differences produce nearby fingerprints.
func fingerprint(text string) uint64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int

	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}

	return fp
}

// hammingDistance counts differing bits between two fingerprints.
func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// nearDuplicatePairs returns index pairs of questions whose texts are
// near-identical despite distinct composite keys. Exact duplicates are
// already merged by key; survivors this close usually mean a frame was
// re-rendered with fresh element ids, which is worth surfacing in logs.
func nearDuplicatePairs(texts []string) [][2]int {
	fps := make([]uint64, len(texts))
	for i, t := range texts {
		fps[i] = fingerprint(t)
	}

	var pairs [][2]int
	for i := 0; i < len(fps); i++ {
		for j := i + 1; j < len(fps); j++ {
			if fps[i] == 0 || fps[j] == 0 {
				continue
			}
			if hammingDistance(fps[i], fps[j]) <= nearDuplicateThreshold {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}
