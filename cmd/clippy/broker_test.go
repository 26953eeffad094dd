package main

import "testing"

func TestBrokerCmdRejectsRingDepthBelowOne(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := brokerCmd()
	cmd.SetArgs([]string{"--ring-depth", "0"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected --ring-depth 0 to be rejected before the broker binds a socket")
	}
}
