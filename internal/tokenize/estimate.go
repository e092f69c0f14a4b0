// Package tokenize implements the heuristic token estimator and the
// per-model learned correction factor used to refine it from observed
// provider usage reports.
package tokenize

import (
	"math"
	"unicode"
)

// The k constants are the divisors applied to a word's rune length to
// approximate its token count; scriptDivisor picks one by script family.
const (
	kEuropeanInflected = 3.25 // Romance/Slavic/Germanic inflected languages
	kEnglish           = 4.0
	kFallback          = 6.0
)

// EstimateTokens applies the heuristic estimator from the spec: CJK runes
// count as one token each, digit runs count as one token, short tokens (<=3
// chars) count as one token, and longer Latin tokens are divided by a
// script-dependent constant. Runtime is linear in len(text); memory is O(1)
// beyond the input.
func EstimateTokens(text string) int {
	total := 0
	runes := []rune(text)
	n := len(runes)

	i := 0
	for i < n {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case isCJK(r):
			total++
			i++
		case unicode.IsDigit(r):
			j := i
			for j < n && unicode.IsDigit(runes[j]) {
				j++
			}
			total++
			i = j
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			total++
			i++
		default:
			j := i
			for j < n && !unicode.IsSpace(runes[j]) && !unicode.IsPunct(runes[j]) && !unicode.IsSymbol(runes[j]) && !isCJK(runes[j]) {
				j++
			}
			word := runes[i:j]
			total += estimateWord(word)
			i = j
		}
	}
	return total
}

func estimateWord(word []rune) int {
	if len(word) == 0 {
		return 0
	}
	if len(word) <= 3 {
		return 1
	}
	k := scriptDivisor(word)
	return int(math.Ceil(float64(len(word)) / k))
}

// scriptDivisor guesses a script family from the presence of Latin-1
// supplement / extended-Latin diacritics versus plain ASCII letters.
func scriptDivisor(word []rune) float64 {
	hasDiacritic := false
	allASCII := true
	for _, r := range word {
		if r > unicode.MaxASCII {
			allASCII = false
			if unicode.Is(unicode.Latin, r) {
				hasDiacritic = true
			}
		}
	}
	switch {
	case allASCII:
		return kEnglish
	case hasDiacritic:
		return kEuropeanInflected
	default:
		return kFallback
	}
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
