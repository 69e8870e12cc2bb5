package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gustavo/advisor-cli/internal/config"
	"github.com/gustavo/advisor-cli/internal/model"
)

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    []model.AdvisorInfo{{FeatureKey: "meme", Name: "Meme Advisor"}},
	}
	if err := Render(&buf, env, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["success"] != true {
		t.Fatalf("success missing from envelope: %s", buf.String())
	}
}

func TestRenderResultsOnlyWithSelect(t *testing.T) {
	var buf bytes.Buffer
	env := model.Envelope{
		Success: true,
		Data: []model.MemeToken{
			{Symbol: "PEPE", Price: 0.00001, RiskLevel: "Medium"},
		},
	}
	settings := config.Settings{OutputMode: "json", ResultsOnly: true, SelectFields: []string{"symbol"}}
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["symbol"] != "PEPE" {
		t.Fatalf("projection wrong: %s", buf.String())
	}
	if _, ok := decoded[0]["risk_level"]; ok {
		t.Fatalf("unselected field leaked: %s", buf.String())
	}
}

func TestRenderPlainLines(t *testing.T) {
	var buf bytes.Buffer
	env := model.Envelope{
		Success: true,
		Data:    []model.ChatWindowView{{FeatureKey: "meme", Visible: true}},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "feature_key=meme") || !strings.Contains(line, "visible=true") {
		t.Fatalf("plain line = %q", line)
	}
}
