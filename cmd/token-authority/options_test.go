package main

import (
	"testing"

	"github.com/jessevdk/go-flags"

	"github.com/giantswarm/token-authority/storage"
)

func TestParseClientSeed(t *testing.T) {
	tests := []struct {
		in      string
		want    clientSeed
		wantErr bool
	}{
		{in: "app:s3cret", want: clientSeed{"app", "s3cret", storage.ClientTypeInternal}},
		{in: "app:s3cret:external", want: clientSeed{"app", "s3cret", storage.ClientTypeExternal}},
		{in: "app:s3cret:", want: clientSeed{"app", "s3cret", storage.ClientTypeInternal}},
		{in: "app", wantErr: true},
		{in: ":s3cret", wantErr: true},
		{in: "a:b:c:d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseClientSeed(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseClientSeed() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseClientSeed() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseUserSeed(t *testing.T) {
	got, err := parseUserSeed("alice:pa:ss")
	if err != nil {
		t.Fatalf("parseUserSeed() error = %v", err)
	}
	if got.login != "alice" || got.password != "pa:ss" {
		t.Errorf("parseUserSeed() = %+v", got)
	}

	for _, in := range []string{"alice", "alice:", ":pw"} {
		if _, err := parseUserSeed(in); err == nil {
			t.Errorf("parseUserSeed(%q) expected error", in)
		}
	}
}

func TestOptions_Defaults(t *testing.T) {
	var opts Options
	if _, err := flags.ParseArgs(&opts, []string{"--client", "a:b", "--client", "c:d:external"}); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if opts.Storage != backendMemory {
		t.Errorf("Storage = %q, want %q", opts.Storage, backendMemory)
	}
	if opts.SessionTTL.Hours() != 1 {
		t.Errorf("SessionTTL = %v, want 1h", opts.SessionTTL)
	}
	if len(opts.Clients) != 2 {
		t.Errorf("Clients = %v, want 2 entries", opts.Clients)
	}
}

func TestOptions_RejectsUnknownStorage(t *testing.T) {
	var opts Options
	if _, err := flags.ParseArgs(&opts, []string{"--storage", "mysql"}); err == nil {
		t.Error("expected error for unsupported storage backend")
	}
}
