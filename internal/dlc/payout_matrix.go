package dlc

import "github.com/go-errors/errors"

// PlacesWeights gives the percentage weight table for a places-to-win row,
// spec §4.3.2. Index 0 is rank 1 (the winner), etc. Every row sums to 100.
var PlacesWeights = map[int][]int{
	1: {100},
	2: {60, 40},
	3: {45, 35, 20},
	4: {42, 30, 18, 10},
	5: {40, 27, 16, 9, 8},
}

// OutcomeKind distinguishes the two synthetic outcomes appended after the
// rank permutations from a genuine attested ranking.
type OutcomeKind int

const (
	OutcomeRanking OutcomeKind = iota
	OutcomeRefundAll
	OutcomeExpiry
)

// Outcome is one row of the payout matrix: a set of percentage weights
// keyed by player index (into the sorted players slice passed to
// BuildPayoutMatrix), summing to exactly 100.
type Outcome struct {
	Index   int
	Kind    OutcomeKind
	Weights map[int]int // player index -> percentage weight
}

// BuildPayoutMatrix enumerates every outcome for a competition's sorted
// players, spec §4.3.2:
//
//  1. every ordered permutation of length numberOfPlacesWin over the
//     players, in stable lexicographic order of player index, each
//     assigned the PlacesWeights row for that rank count;
//  2. one refund-all outcome distributing 100 equally across all players;
//  3. one Expiry outcome with the same equal distribution.
//
// The ordering here MUST match the order in which the oracle assigns
// locking points to outcomes (Design Notes "Deterministic ordering").
func BuildPayoutMatrix(players []Player, numberOfPlacesWin int) ([]Outcome, error) {
	n := len(players)
	if numberOfPlacesWin < 1 || numberOfPlacesWin > n {
		return nil, errors.Errorf(
			"number_of_places_win %d invalid for %d players", numberOfPlacesWin, n)
	}
	weights, ok := PlacesWeights[numberOfPlacesWin]
	if !ok {
		return nil, errors.Errorf("no payout row for %d places", numberOfPlacesWin)
	}

	var outcomes []Outcome
	idx := 0
	for _, perm := range permutations(n, numberOfPlacesWin) {
		w := make(map[int]int, len(perm))
		for rank, playerIdx := range perm {
			w[playerIdx] = weights[rank]
		}
		outcomes = append(outcomes, Outcome{Index: idx, Kind: OutcomeRanking, Weights: w})
		idx++
	}

	equalSplit := equalWeights(n)
	outcomes = append(outcomes, Outcome{Index: idx, Kind: OutcomeRefundAll, Weights: equalSplit})
	idx++
	outcomes = append(outcomes, Outcome{Index: idx, Kind: OutcomeExpiry, Weights: equalSplit})

	return outcomes, nil
}

// equalWeights distributes 100 integer percentage points across n players
// as evenly as possible, using the largest-remainder method so the sum is
// always exactly 100. Remainder points go to the lowest player indices,
// which given SortPlayers is deterministic.
func equalWeights(n int) map[int]int {
	w := make(map[int]int, n)
	if n == 0 {
		return w
	}
	base := 100 / n
	remainder := 100 % n
	for i := 0; i < n; i++ {
		w[i] = base
		if i < remainder {
			w[i]++
		}
	}
	return w
}

// permutations returns every ordered k-permutation of {0,...,n-1} in
// lexicographic order, as index slices of length k.
func permutations(n, k int) [][]int {
	if k == 0 {
		return [][]int{{}}
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	var out [][]int
	used := make([]bool, n)
	current := make([]int, 0, k)

	var rec func()
	rec = func() {
		if len(current) == k {
			perm := make([]int, k)
			copy(perm, current)
			out = append(out, perm)
			return
		}
		for _, i := range indices {
			if used[i] {
				continue
			}
			used[i] = true
			current = append(current, i)
			rec()
			current = current[:len(current)-1]
			used[i] = false
		}
	}
	rec()
	return out
}

// PermutationCount returns n!/(n-k)!, the number of ranking outcomes
// BuildPayoutMatrix produces before the two synthetic outcomes, used by
// tests to check spec §8's invariant
// len(permutations(entries,k)) + 2 == len(outcomes).
func PermutationCount(n, k int) int {
	count := 1
	for i := 0; i < k; i++ {
		count *= n - i
	}
	return count
}
