package posture

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Bindings summarises a listening-socket table.
type Bindings struct {
	OpenPorts          []int `json:"open_ports"`
	LocalhostOnlyPorts []int `json:"localhost_only_ports"`
}

// IsLocalhostOnly reports whether port only listens on loopback.
func (b Bindings) IsLocalhostOnly(port int) bool {
	i := sort.SearchInts(b.LocalhostOnlyPorts, port)
	return i < len(b.LocalhostOnlyPorts) && b.LocalhostOnlyPorts[i] == port
}

type binding struct {
	port     int
	loopback bool
}

var bracketedAddr = regexp.MustCompile(`^\[([^\]]*)\]:(\d+)$`)

// ParseBindings derives open and loopback-only ports from raw listening
// socket text, one binding per line. Lines that cannot be parsed are
// skipped. A port counts as loopback-only when every line binding it is a
// loopback address; a single public binding for the port disqualifies it.
func ParseBindings(raw string) Bindings {
	var lines []binding
	for _, line := range strings.Split(raw, "\n") {
		if b, ok := parseBindingLine(line); ok {
			lines = append(lines, b)
		}
	}
	return aggregateBindings(lines)
}

// ParseBindingsReader is ParseBindings over a stream. Lines of any length
// are accepted; only read errors other than io.EOF are returned.
func ParseBindingsReader(r io.Reader) (Bindings, error) {
	var lines []binding
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if b, ok := parseBindingLine(strings.TrimSuffix(line, "\n")); ok {
			lines = append(lines, b)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Bindings{}, err
		}
	}
	return aggregateBindings(lines), nil
}

func aggregateBindings(lines []binding) Bindings {
	open := make(map[int]struct{})
	loopback := make(map[int]struct{})
	for _, b := range lines {
		open[b.port] = struct{}{}
		if b.loopback {
			loopback[b.port] = struct{}{}
		}
	}
	for _, b := range lines {
		if !b.loopback {
			delete(loopback, b.port)
		}
	}
	return Bindings{
		OpenPorts:          sortedKeys(open),
		LocalhostOnlyPorts: sortedKeys(loopback),
	}
}

// parseBindingLine accepts either a bare "addr:port" line or a whitespace
// separated socket table row (ss/netstat), in which case the first column
// carrying a valid port is used.
func parseBindingLine(line string) (binding, bool) {
	for _, field := range strings.Fields(line) {
		if b, ok := parseAddress(field); ok {
			return b, true
		}
	}
	return binding{}, false
}

func parseAddress(addr string) (binding, bool) {
	if strings.HasPrefix(addr, "[::") {
		m := bracketedAddr.FindStringSubmatch(addr)
		if m == nil {
			return binding{}, false
		}
		port, ok := parsePort(m[2])
		if !ok {
			return binding{}, false
		}
		return binding{port: port, loopback: m[1] == "::1"}, true
	}

	parts := strings.Split(addr, ":")
	if len(parts) < 2 {
		return binding{}, false
	}
	port, ok := parsePort(parts[len(parts)-1])
	if !ok {
		return binding{}, false
	}
	host := strings.Join(parts[:len(parts)-1], ":")
	return binding{port: port, loopback: host == "127.0.0.1" || host == "localhost"}, true
}

func parsePort(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil || port > MaxPort {
		return 0, false
	}
	return port, true
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
