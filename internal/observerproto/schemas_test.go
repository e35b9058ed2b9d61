package observerproto_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	frameSchema := compile("frame.schema.json")
	headerSchema := compile("checkpoint_header.schema.json")
	subSchema := compile("subscribe.schema.json")

	tr, err := trainer.New(trainer.Options{RunID: "run_schema", Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatalf("trainer: %v", err)
	}
	validate(frameSchema, tr.Frame())

	tr.World().Apply(farm.PickupHoe)
	tr.World().Apply(farm.UseItem)
	rec, err := tr.StepOnce()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	f := tr.Frame()
	if f.LastAction != rec.Action {
		t.Fatalf("frame last_action=%q step action=%q", f.LastAction, rec.Action)
	}
	validate(frameSchema, f)

	validate(headerSchema, tr.Checkpoint().Header)
	validate(subSchema, observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, EveryTicks: 2})

	var buf bytes.Buffer
	if err := checkpoint.Encode(&buf, tr.Checkpoint()); err != nil {
		t.Fatalf("encode: %v", err)
	}
	ck, err := checkpoint.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	validate(headerSchema, ck.Header)
}

func TestSchemas_RejectBadFrame(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "frame.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var doc any
	_ = json.Unmarshal([]byte(`{
	  "type":"FRAME","protocol_version":"1.0","run_id":"r","tick":1,"generation":0,"step":1,
	  "status":"running","epsilon":1,"state":[0,0,0,0,0,0,0,2],"last_reward":-10,
	  "width":1,"height":1,"entities":[]
	}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("state value 2 should be rejected")
	}
}
