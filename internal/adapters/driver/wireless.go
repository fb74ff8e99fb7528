// Package driver is the exec-backed ports.Driver reference
// implementation: it drives a monitor-mode Linux interface via `iw` and an
// AF_PACKET raw socket, standing in for a hardware-specific radio shim.
package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
)

// CommandExecutor abstracts system command execution so tests can replace
// it with a fake.
type CommandExecutor interface {
	Execute(name string, args ...string) ([]byte, error)
}

// SystemCommandExecutor implements CommandExecutor using os/exec.
type SystemCommandExecutor struct{}

func (SystemCommandExecutor) Execute(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Radio implements ports.Driver over a monitor-mode Linux interface.
type Radio struct {
	Interface string
	executor  CommandExecutor
	inject    PacketInjector
	channels  []int
}

// New opens Radio on iface: puts it in monitor mode, queries its supported
// channel set, and opens the packet injector used by Submit.
func New(iface string) (*Radio, error) {
	r := &Radio{Interface: iface, executor: SystemCommandExecutor{}}

	if err := r.enableMonitorMode(); err != nil {
		return nil, fmt.Errorf("enable monitor mode on %s: %w", iface, err)
	}

	_, channels, err := r.interfaceCapabilities()
	if err != nil {
		return nil, fmt.Errorf("query capabilities of %s: %w", iface, err)
	}
	r.channels = channels

	inject, err := newInjector(iface)
	if err != nil {
		return nil, fmt.Errorf("open injector on %s: %w", iface, err)
	}
	r.inject = inject

	return r, nil
}

// Close restores the interface to managed mode and releases the injector.
func (r *Radio) Close() {
	if r.inject != nil {
		r.inject.Close()
	}
	_ = r.runCmd("ip", "link", "set", r.Interface, "down")
	_ = r.runCmd("iw", r.Interface, "set", "type", "managed")
	_ = r.runCmd("ip", "link", "set", r.Interface, "up")
}

// SetChannel implements ports.Driver.
func (r *Radio) SetChannel(channel int) error {
	if !r.supports(channel) {
		return domain.ErrUnsupported
	}
	out, err := r.executor.Execute("iw", r.Interface, "set", "channel", strconv.Itoa(channel))
	if err != nil {
		return fmt.Errorf("set channel %d on %s: %w (%s)", channel, r.Interface, err, string(out))
	}
	return nil
}

// SetState implements ports.Driver. The reference driver has no distinct
// hardware RX/TX filter to program; it simply logs the transition for
// diagnostics.
func (r *Radio) SetState(state ports.HardwareFilterState) error {
	log.Printf("driver: %s filter state -> %d", r.Interface, state)
	return nil
}

// Submit implements ports.Driver.
func (r *Radio) Submit(packet []byte) error {
	return r.inject.Inject(packet)
}

// SupportedChannels implements ports.Driver.
func (r *Radio) SupportedChannels() []int {
	return r.channels
}

func (r *Radio) supports(channel int) bool {
	for _, c := range r.channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (r *Radio) enableMonitorMode() error {
	if err := r.runCmd("ip", "link", "set", r.Interface, "down"); err != nil {
		return err
	}
	if err := r.runCmd("iw", r.Interface, "set", "type", "monitor"); err != nil {
		return err
	}
	return r.runCmd("ip", "link", "set", r.Interface, "up")
}

func (r *Radio) runCmd(name string, args ...string) error {
	out, err := r.executor.Execute(name, args...)
	if err != nil {
		log.Printf("driver: command failed: %s %v: %v (%s)", name, args, err, string(out))
		return err
	}
	return nil
}

// interfaceCapabilities maps the interface to its phy and returns the
// phy's supported channel list, a two-step `iw dev` / `iw phy <n> info`
// parse.
func (r *Radio) interfaceCapabilities() (map[string]bool, []int, error) {
	phy, err := r.phyForInterface()
	if err != nil {
		return nil, nil, err
	}
	return r.phyCapabilities(phy)
}

func (r *Radio) phyForInterface() (string, error) {
	out, err := r.executor.Execute("iw", "dev")
	if err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	currentPhy := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "phy#"):
			currentPhy = line
		case strings.HasPrefix(line, "Interface "+r.Interface):
			return strings.Replace(currentPhy, "#", "", 1), nil
		}
	}
	return "", fmt.Errorf("interface %s not found in iw dev output", r.Interface)
}

var channelRe = regexp.MustCompile(`\[([0-9]+)\]`)

func (r *Radio) phyCapabilities(phy string) (map[string]bool, []int, error) {
	out, err := r.executor.Execute("iw", "phy", phy, "info")
	if err != nil {
		return nil, nil, err
	}

	bands := make(map[string]bool)
	var channels []int

	scanner := bufio.NewScanner(bytes.NewReader(out))
	inFrequencies := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "Frequencies:" {
			inFrequencies = true
			continue
		}
		if !inFrequencies {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			inFrequencies = false
			continue
		}
		if strings.Contains(line, "(disabled)") {
			continue
		}
		matches := channelRe.FindStringSubmatch(line)
		if len(matches) < 2 {
			continue
		}
		ch, _ := strconv.Atoi(matches[1])
		channels = append(channels, ch)
		if ch >= 1 && ch <= 14 {
			bands["2.4ghz"] = true
		} else if ch >= 36 {
			bands["5ghz"] = true
		}
	}

	return bands, channels, nil
}
