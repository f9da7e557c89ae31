package session

import (
	"regexp"
	"runtime"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port the host OS currently exposes,
// adapted from the teacher's port-discovery type for the operator-facing
// `dewd scan` diagnostic.
type PortInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid"`
	PID          string `json:"pid"`
	SerialNumber string `json:"serial_number"`
}

// Scanner discovers serial ports present on the host, independent of which
// ones the dispatcher has actually been configured to open: spec's core
// dispatcher configures ports statically at startup, but a discovery
// command is useful for operators deciding what to put in that static
// configuration.
type Scanner struct {
	excludePatterns []*regexp.Regexp
}

// NewScanner returns a scanner that skips any port whose name matches one
// of excludePatterns.
func NewScanner(excludePatterns []string) (*Scanner, error) {
	s := &Scanner{}
	for _, pattern := range excludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		s.excludePatterns = append(s.excludePatterns, re)
	}
	return s, nil
}

// Scan enumerates currently-present serial ports, sorted by name.
func (s *Scanner) Scan() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, port := range ports {
		if s.isExcluded(port.Name) {
			continue
		}
		result = append(result, PortInfo{
			Name:         port.Name,
			Description:  s.buildDescription(port),
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Scanner) isExcluded(name string) bool {
	for _, pattern := range s.excludePatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

func (s *Scanner) buildDescription(port *enumerator.PortDetails) string {
	if port.Product != "" {
		return port.Product
	}
	if port.IsUSB {
		return "USB Serial Device"
	}
	return hostDefaultDescription()
}

func hostDefaultDescription() string {
	if runtime.GOOS == "windows" {
		return "COM Port"
	}
	return "Serial Port"
}
