package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{[]string{}, CommandServe},
		{[]string{"serve"}, CommandServe},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"reconcile"}, CommandReconcile},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"unknown"}, CommandServe},
		{[]string{"migrate", "down", "--flag"}, CommandMigrate},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseMigrateAction(t *testing.T) {
	tests := []struct {
		args   []string
		want   MigrateAction
		wantOK bool
	}{
		{nil, MigrateUp, true},
		{[]string{"up"}, MigrateUp, true},
		{[]string{"down"}, MigrateDown, true},
		{[]string{"version"}, MigrateVersion, true},
		{[]string{"sideways"}, "", false},
	}

	for _, tt := range tests {
		got, ok := ParseMigrateAction(tt.args)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseMigrateAction(%v) = (%q, %v), want (%q, %v)", tt.args, got, ok, tt.want, tt.wantOK)
		}
	}
}
