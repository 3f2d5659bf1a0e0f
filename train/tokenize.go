package train

import "embedalign/vocab"

// TokenizeSentence maps a sentence to exactly length filtered ids. Words the
// vocabulary never saw become the filtered <unk>; long sentences are cut and
// short ones are right-padded with the filtered <pad>.
//
// Every token is indexed before truncation, so words past the cut still
// receive a filtered id in corpus order.
func TokenizeSentence(sentence []string, v *vocab.Vocabulary, length int) []int {
	ids := make([]int, len(sentence))
	for i, tok := range sentence {
		if v.Has(tok) {
			ids[i] = v.Index(tok)
		} else {
			ids[i] = v.FilteredUnkID()
		}
	}

	out := make([]int, length)
	n := copy(out, ids)
	for i := n; i < length; i++ {
		out[i] = v.FilteredPadID()
	}
	return out
}

// TokenizeData tokenizes every sentence in corpus order.
func TokenizeData(sentences [][]string, v *vocab.Vocabulary, length int) [][]int {
	out := make([][]int, len(sentences))
	for i, sen := range sentences {
		out[i] = TokenizeSentence(sen, v, length)
	}
	return out
}
