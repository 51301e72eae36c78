package events

import (
	"encoding/json"
	"testing"

	"masterclock/datamodel/cycle"
)

func TestEncode(t *testing.T) {
	raw, err := Encode(&cycle.Report{ID: "c1", Targets: 3, AverageOffset: -12, Outcome: cycle.OutcomeSynced})
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out["id"] != "c1" || out["outcome"] != "synced" || out["average_offset"] != float64(-12) {
		t.Fatalf("unexpected payload %s", raw)
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	p := &Publisher{subject: DefaultSubject}
	if err := p.PublishReport(&cycle.Report{}); err == nil {
		t.Fatal("expected error without a connection")
	}
	p.Close()
}
