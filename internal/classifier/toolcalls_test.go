package classifier

import "testing"

func TestParseMessageContentPlainText(t *testing.T) {
	got := ParseMessageContent("just some text, no tool calls here")
	if got.Kind != ContentPlainText {
		t.Fatalf("expected plain text, got %+v", got)
	}
}

func TestParseMessageContentSingleToolCall(t *testing.T) {
	content := `before {"name":"bash","parameters":{"cmd":"ls"}} after`
	got := ParseMessageContent(content)
	if got.Kind != ContentMixed {
		t.Fatalf("expected mixed, got %+v", got)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "bash" {
		t.Fatalf("ToolCalls = %+v", got.ToolCalls)
	}
	if len(got.TextParts) != 2 || got.TextParts[0] != "before " || got.TextParts[1] != " after" {
		t.Fatalf("TextParts = %+v", got.TextParts)
	}
}

func TestParseMessageContentToolCallGroup(t *testing.T) {
	content := `{"tool_calls":[{"name":"read","parameters":{}},{"name":"write","parameters":{}}]}`
	got := ParseMessageContent(content)
	if got.Kind != ContentMixed || len(got.ToolCalls) != 2 {
		t.Fatalf("got = %+v", got)
	}
	if got.ToolCalls[0].Name != "read" || got.ToolCalls[1].Name != "write" {
		t.Fatalf("ToolCalls = %+v", got.ToolCalls)
	}
}

func TestParseMessageContentJSONWithoutNameIsNotAToolCall(t *testing.T) {
	content := `look at this: {"foo":"bar"}`
	got := ParseMessageContent(content)
	if got.Kind != ContentPlainText {
		t.Fatalf("expected plain text for non-tool-call JSON, got %+v", got)
	}
}

func TestParseMessageContentBracesInsideStringDontUnbalance(t *testing.T) {
	content := `{"name":"echo","parameters":{"text":"has a } brace inside"}}`
	got := ParseMessageContent(content)
	if got.Kind != ContentMixed || len(got.ToolCalls) != 1 {
		t.Fatalf("got = %+v", got)
	}
	if got.ToolCalls[0].Name != "echo" {
		t.Fatalf("ToolCalls[0] = %+v", got.ToolCalls[0])
	}
}

func TestParseMessageContentResultField(t *testing.T) {
	content := `{"name":"read","parameters":{},"result":"file contents"}`
	got := ParseMessageContent(content)
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Result == nil || *got.ToolCalls[0].Result != "file contents" {
		t.Fatalf("ToolCalls = %+v", got.ToolCalls)
	}
}

func TestParseMessageContentMultipleToolCallsAndText(t *testing.T) {
	content := `Step 1 {"name":"read","parameters":{}} then step 2 {"name":"write","parameters":{}} done`
	got := ParseMessageContent(content)
	if len(got.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %+v", got.ToolCalls)
	}
	if len(got.TextParts) != 3 {
		t.Fatalf("expected 3 text parts, got %+v", got.TextParts)
	}
}
