package questions

// Rand is the randomness Sample draws from. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	IntN(n int) int
}

// Selection is the question set handed to the examiner for one defense.
type Selection struct {
	Content []string `json:"content"`
	Process []string `json:"process"`
}

// Total returns the number of questions in the selection.
func (s Selection) Total() int {
	return len(s.Content) + len(s.Process)
}

// Sample shuffles each category independently and returns the first
// contentCount and processCount questions of each. Counts larger than a
// category are clamped to its size; negative counts are treated as zero.
// Calls share no state, so the same question can come up again in a later call.
func Sample(r Rand, bank Bank, contentCount, processCount int) Selection {
	content, process := bank.Partition()
	return Selection{
		Content: take(shuffle(r, content), contentCount),
		Process: take(shuffle(r, process), processCount),
	}
}

// shuffle is a Fisher-Yates shuffle in place; every permutation is equally
// likely given a uniform r.
func shuffle(r Rand, items []string) []string {
	for i := len(items) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
	return items
}

func take(items []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, n)
	copy(out, items[:n])
	return out
}
