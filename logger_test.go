package msprime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCSVLogger_WritesReplicate(t *testing.T) {
	ts := runReplicate(t, SimulatorConfig{
		SampleSize:        3,
		Ne:                1,
		SequenceLength:    10,
		RecombinationRate: 0.05,
		RandomSeed:        31,
	})
	base := filepath.Join(t.TempDir(), "run")
	logger := NewCSVLogger(base, 1)
	if err := logger.Init(); err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "initializing the logger", err)
	}
	LogTreeSequence(logger, 1, ts, GenerateMutations(ts, 1.0))

	b, err := os.ReadFile(logger.recordPath)
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "reading the record file", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != len(ts.Records()) {
		t.Errorf(UnequalIntParameterError, "record rows", len(ts.Records()), len(lines))
	}
	uid := ts.UID().String()
	for _, line := range lines {
		if !strings.Contains(line, uid) {
			t.Fatalf("record row missing tree UID: %s", line)
		}
	}

	b, err = os.ReadFile(logger.nodePath)
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "reading the node file", err)
	}
	lines = strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != ts.NumNodes() {
		t.Errorf(UnequalIntParameterError, "node rows", ts.NumNodes(), len(lines))
	}

	if _, err := os.Stat(logger.breakpointPath); err != nil {
		t.Errorf(UnexpectedErrorWhileError, "locating the breakpoint file", err)
	}
}
