package commands

import (
	"strings"
	"testing"

	"github.com/voxlate/voxlate/cmd/voxlate/internal/build"
)

func TestVersionString(t *testing.T) {
	s := build.String()
	if !strings.HasPrefix(s, "voxlate ") {
		t.Errorf("version string = %q", s)
	}
	if !strings.Contains(s, build.Version) {
		t.Errorf("version string %q missing version %q", s, build.Version)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "talk", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
