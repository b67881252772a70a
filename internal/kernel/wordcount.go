package kernel

import (
	"strconv"
	"strings"
)

// WordCountMap and WordCountReduce are the spec's own S1/S2/S6 example
// job: map splits a line into words and emits (word, "1"); reduce sums the
// "1"s for each word. Registered under handle "wordcount" by
// RegisterBuiltins.
const WordCount Handle = "wordcount"

func wordCountMap(_, inValue []byte) ([]KV, error) {
	words := strings.Fields(string(inValue))
	out := make([]KV, 0, len(words))
	for _, w := range words {
		out = append(out, KV{Key: []byte(w), Value: []byte("1")})
	}
	return out, nil
}

func wordCountReduce(_ []byte, values [][]byte) ([]byte, error) {
	sum := 0
	for _, v := range values {
		n, err := strconv.Atoi(string(v))
		if err != nil {
			continue
		}
		sum += n
	}
	return []byte(strconv.Itoa(sum)), nil
}

// RegisterBuiltins installs the kernels every chordmr worker ships with.
// cmd/node calls this once at startup so any node can be assigned a
// WordCount map or reduce task regardless of which node submitted it.
func RegisterBuiltins(r *Registry) {
	r.Register(WordCount, wordCountMap, wordCountReduce)
}
