package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type sampleResult struct {
	ActionID  string `json:"action_id"`
	RiskLevel string `json:"risk_level"`
	Success   bool   `json:"success"`
}

func TestWriteJSON(t *testing.T) {
	var out bytes.Buffer
	w := New(FormatJSON, WithOutput(&out))

	err := w.Write(sampleResult{ActionID: "a1", RiskLevel: "high_risk", Success: true})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got sampleResult
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if got.ActionID != "a1" || got.RiskLevel != "high_risk" || !got.Success {
		t.Errorf("round trip = %+v", got)
	}
	if !strings.Contains(out.String(), "\n  ") {
		t.Error("JSON output not indented")
	}
}

func TestWriteYAMLUsesJSONFieldNames(t *testing.T) {
	var out bytes.Buffer
	w := New(FormatYAML, WithOutput(&out))

	err := w.Write(sampleResult{ActionID: "a1", RiskLevel: "safe"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "action_id: a1") {
		t.Errorf("YAML output %q missing snake_case key", text)
	}
	if strings.Contains(text, "actionid") {
		t.Errorf("YAML output %q used Go field name", text)
	}
}

func TestWriteTextGoesToErrorOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	w := New(FormatText, WithOutput(&out), WithErrorOutput(&errOut))

	if err := w.Write("pending: 3"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("text output leaked to stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "pending: 3") {
		t.Errorf("errOut = %q", errOut.String())
	}
}

func TestWriteUnsupportedFormat(t *testing.T) {
	w := New(Format("xml"))
	if err := w.Write("x"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSuccessAndError(t *testing.T) {
	var out bytes.Buffer
	w := New(FormatJSON, WithOutput(&out))

	w.Success("action approved")
	var msg map[string]any
	if err := json.Unmarshal(out.Bytes(), &msg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if msg["status"] != "success" || msg["message"] != "action approved" {
		t.Errorf("success payload = %v", msg)
	}

	out.Reset()
	w.Error(errors.New("boom"))
	if err := json.Unmarshal(out.Bytes(), &msg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if msg["status"] != "error" || msg["message"] != "boom" {
		t.Errorf("error payload = %v", msg)
	}
}
