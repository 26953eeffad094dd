package client

import (
	"strings"
	"testing"
)

func TestValidateDeliverArgs(t *testing.T) {
	cases := []struct {
		name             string
		sink, session, path string
		wantErrSubstring string
	}{
		{name: "clipboard ok", sink: "clipboard"},
		{name: "inject ok", sink: "inject", session: "s1"},
		{name: "inject missing session", sink: "inject", wantErrSubstring: "--session"},
		{name: "file ok", sink: "file", path: "/tmp/out"},
		{name: "file missing path", sink: "file", wantErrSubstring: "--path"},
		{name: "unknown sink", sink: "foobar", wantErrSubstring: "unknown sink"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDeliverArgs(tc.sink, tc.session, tc.path)
			if tc.wantErrSubstring == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected an error containing %q, got nil", tc.wantErrSubstring)
			}
			if !strings.Contains(err.Error(), tc.wantErrSubstring) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.wantErrSubstring)
			}
		})
	}
}
