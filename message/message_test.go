package message

import (
	"encoding/json"
	"testing"
)

func TestRequestMarshalFlattensKwargs(t *testing.T) {
	req := NewRequest("select_node", []any{"pCube1"}, map[string]any{
		"add_to_selection": true,
	})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// Keyword arguments live at the top level, next to cmd and args
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if obj["cmd"] != "select_node" {
		t.Errorf("cmd mismatch: got %v", obj["cmd"])
	}
	if obj["add_to_selection"] != true {
		t.Errorf("kwarg not flattened: got %v", obj["add_to_selection"])
	}
	if _, ok := obj["kwargs"]; ok {
		t.Error("wire object must not contain a kwargs key")
	}
	args, ok := obj["args"].([]any)
	if !ok || len(args) != 1 || args[0] != "pCube1" {
		t.Errorf("args mismatch: got %v", obj["args"])
	}
}

func TestRequestMarshalReservedKeys(t *testing.T) {
	// A kwarg named cmd or args must never clobber the real fields
	req := NewRequest("echo", nil, map[string]any{
		"cmd":  "evil",
		"args": "evil",
		"text": "hi",
	})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var obj map[string]any
	json.Unmarshal(data, &obj)
	if obj["cmd"] != "echo" {
		t.Errorf("cmd was clobbered: got %v", obj["cmd"])
	}
	if _, ok := obj["args"]; ok {
		t.Error("args key should be absent when no positional arguments are set")
	}
}

func TestRequestUnmarshal(t *testing.T) {
	data := []byte(`{"cmd": "set_title", "args": [1, 2], "title": "hello", "flag": false}`)

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.Cmd != "set_title" {
		t.Errorf("cmd mismatch: got %q", req.Cmd)
	}
	if len(req.Args) != 2 {
		t.Errorf("args mismatch: got %v", req.Args)
	}
	if req.String("title") != "hello" {
		t.Errorf("title kwarg mismatch: got %v", req.Kwarg("title"))
	}
	if req.Bool("flag", true) != false {
		t.Error("flag kwarg should be false")
	}
	if req.Bool("missing", true) != true {
		t.Error("absent bool kwarg should fall back to the default")
	}
}

func TestRequestUnmarshalMissingCmd(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"args": []}`), &req); err == nil {
		t.Fatal("expected error for a request without cmd")
	}
}

func TestFailureInvariant(t *testing.T) {
	resp := Failure("select_node", "")
	if resp.Success {
		t.Error("failure response must not be successful")
	}
	if resp.Msg != "Unknown Error" {
		t.Errorf("empty failure message must be substituted: got %q", resp.Msg)
	}
	if resp.Cmd != "select_node" {
		t.Errorf("failure must name the failing command: got %q", resp.Cmd)
	}
}

func TestResponseResultAlwaysPresent(t *testing.T) {
	// result is part of the wire shape even when nil
	resp := &Response{Success: true}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var obj map[string]any
	json.Unmarshal(data, &obj)
	if _, ok := obj["result"]; !ok {
		t.Error("result key missing from serialized response")
	}
	if _, ok := obj["msg"]; ok {
		t.Error("empty msg should be omitted")
	}
}

func TestResponseStatusRoundTrip(t *testing.T) {
	resp := &Response{Success: true, Result: "ok"}
	resp.Status = &Status{Msg: "Connected to: Maya 2022 (1234)", Level: LevelSuccess}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Status == nil || decoded.Status.Level != LevelSuccess {
		t.Errorf("status lost in round trip: %+v", decoded.Status)
	}
}
