package provider

import "testing"

func TestThinkTagSplitterWholeChunk(t *testing.T) {
	s := &thinkTagSplitter{}
	text, reasoning := s.feed("<think>pondering</think>answer")
	if text != "answer" || reasoning != "pondering" {
		t.Fatalf("got text=%q reasoning=%q", text, reasoning)
	}
}

func TestThinkTagSplitterAcrossChunks(t *testing.T) {
	s := &thinkTagSplitter{}
	chunks := []string{"<thi", "nk>pond", "ering</th", "ink>ans", "wer"}
	var text, reasoning string
	for _, c := range chunks {
		tt, rr := s.feed(c)
		text += tt
		reasoning += rr
	}
	ft, fr := s.flush()
	text += ft
	reasoning += fr

	if text != "answer" {
		t.Fatalf("text = %q, want %q", text, "answer")
	}
	if reasoning != "pondering" {
		t.Fatalf("reasoning = %q, want %q", reasoning, "pondering")
	}
}

func TestThinkTagSplitterNoTags(t *testing.T) {
	s := &thinkTagSplitter{}
	text, reasoning := s.feed("just plain text")
	if text != "just plain text" || reasoning != "" {
		t.Fatalf("got text=%q reasoning=%q", text, reasoning)
	}
}

func TestThinkTagSplitterUnterminated(t *testing.T) {
	s := &thinkTagSplitter{}
	text, reasoning := s.feed("before <think>never closes")
	if text != "before " {
		t.Fatalf("text = %q, want %q", text, "before ")
	}
	if reasoning != "never closes" {
		t.Fatalf("reasoning = %q, want %q", reasoning, "never closes")
	}
	ft, fr := s.flush()
	if ft != "" || fr != "" {
		t.Fatalf("flush got text=%q reasoning=%q, want empty", ft, fr)
	}
}
