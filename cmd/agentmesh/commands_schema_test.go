package main

import (
	"bytes"
	"testing"
)

func TestSchemaCommandPrintsJSON(t *testing.T) {
	cmd := buildSchemaCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("RunE: %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected schema output")
	}
}
