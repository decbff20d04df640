package embedding

import "testing"

func testTokenizer() *tokenizer {
	return &tokenizer{vocab: map[string]int64{
		"[CLS]": 101, "[SEP]": 102, "[UNK]": 100, "[PAD]": 0,
		"hello": 1, "world": 2, "play": 3, "##ing": 4, "un": 5, "##known": 6,
	}}
}

func TestWordpieceWholeWordMatch(t *testing.T) {
	tok := testTokenizer()
	got := tok.wordpiece("hello")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("wordpiece(hello) = %v, want [hello]", got)
	}
}

func TestWordpieceSplitsContinuation(t *testing.T) {
	tok := testTokenizer()
	got := tok.wordpiece("playing")
	if len(got) != 2 || got[0] != "play" || got[1] != "##ing" {
		t.Fatalf("wordpiece(playing) = %v, want [play ##ing]", got)
	}
}

func TestWordpieceUnknownFallback(t *testing.T) {
	tok := testTokenizer()
	got := tok.wordpiece("zzzqqq")
	if len(got) != 1 || got[0] != tokenUNK {
		t.Fatalf("wordpiece(zzzqqq) = %v, want [UNK]", got)
	}
}

func TestEncodeWrapsWithClsAndSep(t *testing.T) {
	tok := testTokenizer()
	ids, mask, typeIDs := tok.encode("hello world")
	wantIDs := []int64{101, 1, 2, 102}
	if len(ids) != len(wantIDs) {
		t.Fatalf("ids = %v, want len %d", ids, len(wantIDs))
	}
	for i, id := range wantIDs {
		if ids[i] != id {
			t.Fatalf("ids = %v, want %v", ids, wantIDs)
		}
	}
	for _, m := range mask {
		if m != 1 {
			t.Fatalf("mask = %v, want all 1s for a short sequence", mask)
		}
	}
	for _, tt := range typeIDs {
		if tt != 0 {
			t.Fatalf("tokenTypeIDs = %v, want all 0 for single-segment input", typeIDs)
		}
	}
}

func TestSplitWordsSplitsPunctuation(t *testing.T) {
	got := splitWords("hello, world! foo_bar")
	want := []string{"hello", "world", "foo", "bar"}
	if len(got) != len(want) {
		t.Fatalf("splitWords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitWords = %v, want %v", got, want)
		}
	}
}
