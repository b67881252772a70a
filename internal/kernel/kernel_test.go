package kernel

import (
	"strconv"
	"testing"
)

func TestWordCountMapReduce(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	lines := []string{
		"hello world",
		"hello distributed computing",
		"world of mapreduce",
	}

	counts := make(map[string][][]byte)
	for i, line := range lines {
		kvs, err := r.InvokeMap(WordCount, []byte(strconv.Itoa(i)), []byte(line))
		if err != nil {
			t.Fatalf("InvokeMap failed: %v", err)
		}
		for _, kv := range kvs {
			counts[string(kv.Key)] = append(counts[string(kv.Key)], kv.Value)
		}
	}

	want := map[string]string{
		"hello":       "2",
		"world":       "2",
		"distributed": "1",
		"computing":   "1",
		"of":          "1",
		"mapreduce":   "1",
	}
	for word, values := range counts {
		got, err := r.InvokeReduce(WordCount, []byte(word), values)
		if err != nil {
			t.Fatalf("InvokeReduce(%q) failed: %v", word, err)
		}
		if string(got) != want[word] {
			t.Errorf("count[%q] = %s, expected %s", word, got, want[word])
		}
	}
	if len(counts) != len(want) {
		t.Errorf("got %d distinct words, expected %d", len(counts), len(want))
	}
}

func TestInvokeUnknownHandle(t *testing.T) {
	r := NewRegistry()
	if _, err := r.InvokeMap("nope", nil, nil); err == nil {
		t.Error("InvokeMap on unregistered handle should error")
	}
	if _, err := r.InvokeReduce("nope", nil, nil); err == nil {
		t.Error("InvokeReduce on unregistered handle should error")
	}
}
