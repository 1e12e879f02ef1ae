package floproto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/koltyakov/flo/internal/domain"
)

func TestResourceMessageWireShape(t *testing.T) {
	raw, err := json.Marshal(ResourceMessage(domain.Resource{URL: "a.js", Contents: "x"}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"kind":"resource","resource":{"resourceURL":"a.js","contents":"x"}}`
	if string(raw) != want {
		t.Fatalf("unexpected wire shape:\n got %s\nwant %s", raw, want)
	}
}

func TestDecodeAcceptsEmptyContents(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"resource","resource":{"resourceURL":"a.css","contents":""}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Resource.URL != "a.css" || msg.Resource.Contents != "" {
		t.Fatalf("unexpected resource: %+v", msg.Resource)
	}
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"missing kind": `{}`,
		"unknown kind": `{"kind":"reload"}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	for _, raw := range []string{
		`{"kind":"resource"}`,
		`{"kind":"resource","resource":{"contents":"x"}}`,
	} {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, domain.ErrInvalidResource) {
			t.Fatalf("expected ErrInvalidResource for %s, got %v", raw, err)
		}
	}
}

func TestDecodeHello(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"hello","hello":{"session_id":"01J","server_version":"dev"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Hello == nil || msg.Hello.SessionID != "01J" {
		t.Fatalf("unexpected hello: %+v", msg.Hello)
	}
}
