package startup

import (
	"strings"
	"testing"

	"media-catalog/internal/database"
	"media-catalog/internal/ingest"
)

const receiverDoc = `
[[receivers]]
name = "scans"
root = "/data/scans"
extensions = ["jpg", "png"]
match = 'batch-\d+'
tags = ["source:scanner"]
stars = 2

[[receivers]]
name = "downloads"
extensions = ["mp4"]
`

func TestReadReceivers(t *testing.T) {
	t.Parallel()

	receivers, err := ReadReceivers(strings.NewReader(receiverDoc))
	if err != nil {
		t.Fatalf("ReadReceivers failed: %v", err)
	}
	if len(receivers) != 2 {
		t.Fatalf("Expected 2 receivers, got %d", len(receivers))
	}
	if receivers[0].Name() != "scans" || receivers[1].Name() != "downloads" {
		t.Errorf("Receiver order not preserved: %s, %s", receivers[0].Name(), receivers[1].Name())
	}

	scans, ok := receivers[0].(*ingest.RuleReceiver)
	if !ok {
		t.Fatalf("Expected RuleReceiver, got %T", receivers[0])
	}
	if scans.Info == nil || scans.Info.Stars == nil || *scans.Info.Stars != 2 {
		t.Errorf("Expected stars 2 on scans receiver, got %+v", scans.Info)
	}

	if !scans.Matches(&database.FilesystemPath{Filepath: "/data/scans/batch-07/a.jpg"}) {
		t.Error("Expected scans receiver to match its path shape")
	}
	if scans.Matches(&database.FilesystemPath{Filepath: "/data/scans/loose/a.jpg"}) {
		t.Error("Expected scans receiver to reject paths without the match pattern")
	}
}

func TestReadReceiversRejectsBadDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "[[receivers]]\nroot = \"/x\"\n"},
		{"reserved name", "[[receivers]]\nname = \"default\"\n"},
		{"duplicate name", "[[receivers]]\nname = \"a\"\n[[receivers]]\nname = \"a\"\n"},
		{"bad regexp", "[[receivers]]\nname = \"a\"\nmatch = \"(\"\n"},
		{"bad toml", "receivers = what"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ReadReceivers(strings.NewReader(tt.doc)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoadReceiversEmptyPath(t *testing.T) {
	t.Parallel()

	receivers, err := LoadReceivers("")
	if err != nil || receivers != nil {
		t.Errorf("Expected no receivers and no error, got %v, %v", receivers, err)
	}
}
