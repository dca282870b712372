package deps_test

import (
	"testing"

	"caddis/internal/deps"
	"caddis/internal/testsupport"
)

func TestCheckBinariesReportsAvailability(t *testing.T) {
	binDir := t.TempDir()
	stub := testsupport.WriteStubBinary(t, binDir, "ODAFileConverter", "#!/bin/sh\nexit 0\n")

	results := deps.CheckBinaries([]deps.Requirement{
		{Name: "ODA File Converter", Command: stub},
		{Name: "Xvfb", Command: "caddis-definitely-not-installed"},
		{Name: "Optional tool", Command: "", Optional: true},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(results))
	}

	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("absolute path to stub should be available: %+v", results[0])
	}
	if results[1].Available {
		t.Fatalf("missing binary reported available: %+v", results[1])
	}
	if results[1].Detail == "" {
		t.Fatal("missing binary should carry a detail message")
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unconfigured command mishandled: %+v", results[2])
	}
	if !results[2].Optional {
		t.Fatal("optional flag should carry through")
	}
}

func TestRequirementsCoverBothBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Converter.Binary = "ODAFileConverter"
	cfg.Display.XvfbBinary = "Xvfb"

	reqs := deps.Requirements(cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "ODAFileConverter" || reqs[1].Command != "Xvfb" {
		t.Fatalf("unexpected commands: %+v", reqs)
	}
	for _, req := range reqs {
		if req.Optional {
			t.Fatalf("%s should be required", req.Name)
		}
	}
}
