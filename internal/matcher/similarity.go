package matcher

const (
	// maxLengthGap short-circuits pairs whose lengths differ too much to be
	// spelling variants of each other.
	maxLengthGap = 5

	winklerScale     = 0.05
	winklerMaxPrefix = 3
)

// Similarity scores two folded strings between 0 and 1 with a conservative
// Jaro-Winkler variant: the Winkler prefix bonus is 0.05 per shared leading
// character, up to three.
func Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1
	}
	a, b := []rune(s1), []rune(s2)
	l1, l2 := len(a), len(b)
	if l1-l2 > maxLengthGap || l2-l1 > maxLengthGap {
		return 0
	}
	if l1 == 0 || l2 == 0 {
		return 0
	}

	window := max(l1, l2)/2 - 1
	matchedA := make([]bool, l1)
	matchedB := make([]bool, l2)

	matches := 0
	for i := range a {
		start := max(0, i-window)
		end := min(i+window+1, l2)
		for j := start; j < end; j++ {
			if matchedB[j] || a[i] != b[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(l1) + m/float64(l2) + (m-float64(transpositions)/2)/m) / 3

	prefix := 0
	for i := 0; i < min(winklerMaxPrefix, l1, l2); i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*winklerScale*(1-jaro)
}
