// Package collector implements the pure inventory probes: host and Docker.
// Both expose a single Collect(ctx) operation and hold no state between
// calls — any failure in one sub-probe degrades that slot to empty/partial
// rather than failing the whole collection.
package collector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"
	"time"
)

const (
	maxPackages = 5000
	maxServices = 200
	maxPorts    = 500
)

// Package is a name+version pair from a distro package manager.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListeningPort identifies a bound socket.
type ListeningPort struct {
	Port    string `json:"port"`
	Address string `json:"address"`
}

// HostInventory is the structured record produced by the host collector.
type HostInventory struct {
	OS             string          `json:"os"`
	OSRelease      string          `json:"os_release"`
	Hostname       string          `json:"hostname"`
	Machine        string          `json:"machine"`
	Packages       []Package       `json:"packages"`
	Services       []string        `json:"services"`
	ListeningPorts []ListeningPort `json:"listening_ports"`
	UsersWithSudo  []string        `json:"users_with_sudo"`
}

// HostCollector probes the local host for inventory.
type HostCollector struct {
	log *log.Logger
}

// NewHostCollector creates a host collector.
func NewHostCollector() *HostCollector {
	return &HostCollector{log: log.New(os.Stderr, "[collector.host] ", log.LstdFlags)}
}

// Collect gathers the host inventory. Each sub-probe is independent: its
// failure yields an empty slot and a warning, never an aggregate failure.
func (c *HostCollector) Collect(ctx context.Context) HostInventory {
	inv := HostInventory{
		OS:        runtime.GOOS,
		OSRelease: osRelease(),
		Hostname:  hostname(),
		Machine:   runtime.GOARCH,
	}

	if pkgs, err := c.packages(ctx); err != nil {
		c.log.Printf("could not get packages: %v", err)
	} else {
		inv.Packages = pkgs
	}
	if svcs, err := c.services(ctx); err != nil {
		c.log.Printf("could not get services: %v", err)
	} else {
		inv.Services = svcs
	}
	if ports, err := c.listeningPorts(ctx); err != nil {
		c.log.Printf("could not get listening ports: %v", err)
	} else {
		inv.ListeningPorts = ports
	}
	if users, err := c.sudoUsers(ctx); err != nil {
		c.log.Printf("could not get sudo users: %v", err)
	} else {
		inv.UsersWithSudo = users
	}

	return inv
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func osRelease() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "VERSION_ID=") {
			return strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), `"`)
		}
	}
	return runtime.GOOS
}

// packages tries distro package managers in order; the first nonempty
// result wins.
func (c *HostCollector) packages(ctx context.Context) ([]Package, error) {
	probes := []struct {
		cmd    string
		args   []string
		parser func([]byte) []Package
	}{
		{"dpkg-query", []string{"-W", "-f=${Package}\t${Version}\n"}, parseDpkg},
		{"rpm", []string{"-qa", "--qf", "%{NAME}\t%{VERSION}-%{RELEASE}\n"}, parseDpkg},
	}
	for _, p := range probes {
		out, err := runCommand(ctx, 30*time.Second, p.cmd, p.args...)
		if err != nil {
			continue
		}
		pkgs := p.parser(out)
		if len(pkgs) > 0 {
			if len(pkgs) > maxPackages {
				pkgs = pkgs[:maxPackages]
			}
			return pkgs, nil
		}
	}
	return nil, nil
}

func parseDpkg(out []byte) []Package {
	var pkgs []Package
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), "\t", 2)
		if len(parts) != 2 {
			continue
		}
		pkgs = append(pkgs, Package{Name: parts[0], Version: parts[1]})
	}
	return pkgs
}

func (c *HostCollector) services(ctx context.Context) ([]string, error) {
	out, err := runCommand(ctx, 10*time.Second, "systemctl", "list-units", "--type=service", "--state=running", "--no-legend", "--no-pager")
	if err != nil {
		return nil, err
	}
	var svcs []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		svcs = append(svcs, fields[0])
		if len(svcs) >= maxServices {
			break
		}
	}
	return svcs, nil
}

func (c *HostCollector) listeningPorts(ctx context.Context) ([]ListeningPort, error) {
	out, err := runCommand(ctx, 5*time.Second, "ss", "-tlnp")
	if err != nil {
		return nil, err
	}
	var ports []ListeningPort
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		addr := fields[3]
		port := addr
		if idx := strings.LastIndex(addr, ":"); idx >= 0 {
			port = addr[idx+1:]
		}
		ports = append(ports, ListeningPort{Port: port, Address: addr})
		if len(ports) >= maxPorts {
			break
		}
	}
	return ports, nil
}

// sudoUsers returns members of the sudo group, then wheel, whichever is
// present first.
func (c *HostCollector) sudoUsers(ctx context.Context) ([]string, error) {
	for _, group := range []string{"sudo", "wheel"} {
		g, err := user.LookupGroup(group)
		if err != nil {
			continue
		}
		out, err := runCommand(ctx, 5*time.Second, "getent", "group", g.Name)
		if err != nil {
			continue
		}
		line := strings.TrimSpace(string(out))
		parts := strings.Split(line, ":")
		if len(parts) < 4 || parts[3] == "" {
			continue
		}
		return strings.Split(parts[3], ","), nil
	}
	return nil, nil
}

func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
