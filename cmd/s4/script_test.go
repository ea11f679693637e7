package main

import (
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts runs the txtar-driven end-to-end scripts under
// testdata/script against a built s4 binary, the way the teacher's
// tests/regression harness drives bd end-to-end rather than unit-testing
// cobra command wiring directly.
func TestScripts(t *testing.T) {
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	ctx := context.Background()
	scripttest.Test(t, ctx, engine, os.Environ(), "testdata/script/*.txt")
}
