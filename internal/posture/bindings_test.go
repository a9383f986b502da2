package posture

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseBindings(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantOpen      []int
		wantLocalhost []int
	}{
		{
			name:          "empty",
			raw:           "",
			wantOpen:      []int{},
			wantLocalhost: []int{},
		},
		{
			name:          "public binding overrides loopback",
			raw:           "0.0.0.0:3306\n127.0.0.1:3306\n",
			wantOpen:      []int{3306},
			wantLocalhost: []int{},
		},
		{
			name:          "loopback only",
			raw:           "127.0.0.1:3306",
			wantOpen:      []int{3306},
			wantLocalhost: []int{3306},
		},
		{
			name:          "localhost literal",
			raw:           "localhost:6379",
			wantOpen:      []int{6379},
			wantLocalhost: []int{6379},
		},
		{
			name:          "ipv6 loopback",
			raw:           "[::1]:3306",
			wantOpen:      []int{3306},
			wantLocalhost: []int{3306},
		},
		{
			name:          "ipv6 wildcard",
			raw:           "[::]:80",
			wantOpen:      []int{80},
			wantLocalhost: []int{},
		},
		{
			name:          "ipv6 wildcard beats ipv4 loopback",
			raw:           "127.0.0.1:5432\n[::]:5432",
			wantOpen:      []int{5432},
			wantLocalhost: []int{},
		},
		{
			name:          "wildcard star",
			raw:           "*:25",
			wantOpen:      []int{25},
			wantLocalhost: []int{},
		},
		{
			name:          "sorted and deduplicated",
			raw:           "  0.0.0.0:443  \n\n0.0.0.0:22\n0.0.0.0:443\n10.0.0.5:8080\n",
			wantOpen:      []int{22, 443, 8080},
			wantLocalhost: []int{},
		},
		{
			name:          "malformed lines skipped",
			raw:           "garbage\n0.0.0.0:abc\n[::1]:\n127.0.0.1:-1\n0.0.0.0:70000\n127.0.0.1:9000",
			wantOpen:      []int{9000},
			wantLocalhost: []int{9000},
		},
		{
			name: "ss table rows",
			raw: "State  Recv-Q Send-Q Local Address:Port Peer Address:Port\n" +
				"LISTEN 0      128    0.0.0.0:22         0.0.0.0:*\n" +
				"LISTEN 0      80     127.0.0.1:3306     0.0.0.0:*\n" +
				"LISTEN 0      128    [::]:22            [::]:*\n",
			wantOpen:      []int{22, 3306},
			wantLocalhost: []int{3306},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBindings(tt.raw)
			if !reflect.DeepEqual(got.OpenPorts, tt.wantOpen) {
				t.Errorf("OpenPorts = %v, want %v", got.OpenPorts, tt.wantOpen)
			}
			if !reflect.DeepEqual(got.LocalhostOnlyPorts, tt.wantLocalhost) {
				t.Errorf("LocalhostOnlyPorts = %v, want %v", got.LocalhostOnlyPorts, tt.wantLocalhost)
			}
		})
	}
}

func TestParseBindingsReader(t *testing.T) {
	got, err := ParseBindingsReader(strings.NewReader("127.0.0.1:5432\n0.0.0.0:80\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got.OpenPorts, []int{80, 5432}) {
		t.Fatalf("OpenPorts = %v", got.OpenPorts)
	}
	if !got.IsLocalhostOnly(5432) || got.IsLocalhostOnly(80) {
		t.Fatalf("unexpected loopback classification: %+v", got)
	}
}

func TestParseBindingsReader_LongLines(t *testing.T) {
	raw := "0.0.0.0:3306\n" + strings.Repeat("x", 70*1024) + "\n127.0.0.1:5432\n" +
		strings.Repeat(" ", 80*1024) + "0.0.0.0:8080"

	got, err := ParseBindingsReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ParseBindings(raw)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reader = %+v, string = %+v", got, want)
	}
	if !reflect.DeepEqual(got.OpenPorts, []int{3306, 5432, 8080}) {
		t.Fatalf("OpenPorts = %v", got.OpenPorts)
	}
	if !reflect.DeepEqual(got.LocalhostOnlyPorts, []int{5432}) {
		t.Fatalf("LocalhostOnlyPorts = %v", got.LocalhostOnlyPorts)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestParseBindingsReader_ReadError(t *testing.T) {
	if _, err := ParseBindingsReader(failingReader{}); err == nil {
		t.Fatal("expected read error")
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr         string
		wantOK       bool
		wantPort     int
		wantLoopback bool
	}{
		{"0.0.0.0:22", true, 22, false},
		{"127.0.0.1:22", true, 22, true},
		{"[::1]:631", true, 631, true},
		{"[::]:631", true, 631, false},
		{"[::ffff:127.0.0.1]:8080", true, 8080, false},
		{"[::1]631", false, 0, false},
		{"22", false, 0, false},
		{"0.0.0.0:*", false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, ok := parseAddress(tt.addr)
			if ok != tt.wantOK {
				t.Fatalf("parseAddress(%q) ok = %v, want %v", tt.addr, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.port != tt.wantPort || got.loopback != tt.wantLoopback {
				t.Fatalf("parseAddress(%q) = %+v", tt.addr, got)
			}
		})
	}
}

func TestBindingsFeedScoring(t *testing.T) {
	b := ParseBindings("0.0.0.0:22\n127.0.0.1:3306\n0.0.0.0:8080\n")
	in := AuditInput{
		OpenPorts:          b.OpenPorts,
		LocalhostOnlyPorts: b.LocalhostOnlyPorts,
		FirewallActive:     true,
		Fail2banActive:     true,
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("parser output failed validation: %v", err)
	}
	if got := Score(in).Score; got != 83 {
		t.Fatalf("score = %d, want 83", got)
	}
}
