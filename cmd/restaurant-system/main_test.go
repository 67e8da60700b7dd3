package main

import (
	"reflect"
	"testing"
)

func TestSplitMode(t *testing.T) {
	tests := []struct {
		args     []string
		modeArgs []string
		rest     []string
	}{
		{[]string{"--mode=os", "--port", "3000"}, []string{"--mode=os"}, []string{"--port", "3000"}},
		{[]string{"--mode", "wd", "--prefetch", "2"}, []string{"--mode", "wd"}, []string{"--prefetch", "2"}},
		{[]string{"--config-path", "c.yaml", "--mode", "ns"}, []string{"--mode", "ns"}, []string{"--config-path", "c.yaml"}},
		{[]string{"--port", "1"}, nil, []string{"--port", "1"}},
	}
	for _, tt := range tests {
		modeArgs, rest := splitMode(tt.args)
		if !reflect.DeepEqual(modeArgs, tt.modeArgs) || !reflect.DeepEqual(rest, tt.rest) {
			t.Fatalf("splitMode(%v) = %v, %v", tt.args, modeArgs, rest)
		}
	}
}

func TestModesResolveAliases(t *testing.T) {
	for alias, name := range map[string]string{"os": "order-service", "wd": "worker-dispatcher", "ns": "notification-subscriber"} {
		if modes[alias].name != name {
			t.Fatalf("%s -> %s", alias, modes[alias].name)
		}
	}
}
