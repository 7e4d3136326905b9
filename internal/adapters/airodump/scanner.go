// Package airodump drives airodump-ng to survey nearby access points and
// stations, and parses its CSV output. It is the Go counterpart of
// network_scanner.py's perform_airodump_scan, generalized onto the shell
// executor's detached-process handle instead of Python's subprocess.Popen.
package airodump

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Scanner runs bounded airodump-ng scans and parses the resulting CSV.
type Scanner struct {
	shell      ports.ShellRunner
	log        *logging.Logger
	tmpDirFunc func() string
}

// New returns a Scanner backed by shell.
func New(shell ports.ShellRunner) *Scanner {
	return &Scanner{shell: shell, log: logging.Component("airodump"), tmpDirFunc: os.TempDir}
}

var _ ports.NetworkScanner = (*Scanner)(nil)

// Scan runs airodump-ng on monitorIface for durationSeconds, writing CSV
// output to a temp file prefix, then parses and returns the result.
// securityFilter, when non-empty, is passed through to airodump-ng's
// --encrypt flag (e.g. "WPA2") to cut down on unrelated APs being logged.
func (s *Scanner) Scan(ctx context.Context, monitorIface string, durationSeconds int, securityFilter string) (domain.ScanResult, error) {
	prefix := filepath.Join(s.tmpDirFunc(), fmt.Sprintf("capgate-scan-%d", time.Now().UnixNano()))
	defer cleanupScanFiles(prefix)

	argv := []string{"airodump-ng", "--output-format", "csv", "--write", prefix}
	if securityFilter != "" {
		argv = append(argv, "--encrypt", securityFilter)
	}
	argv = append(argv, monitorIface)

	proc, err := s.shell.Start(ctx, argv, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("start airodump-ng: %w", err)
	}

	timer := time.NewTimer(time.Duration(durationSeconds) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := proc.Stop(int64(3 * time.Second)); err != nil {
		s.log.Warn("airodump-ng did not stop cleanly: %v", err)
	}

	data, err := os.ReadFile(prefix + "-01.csv")
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("read airodump-ng csv output: %w", err)
	}
	return ParseCSV(string(data)), nil
}

func cleanupScanFiles(prefix string) {
	matches, _ := filepath.Glob(prefix + "-*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// ParseCSV parses airodump-ng's --output-format csv dialect: two sections
// separated by a blank line, the AP section's header starting with "BSSID"
// and the station section's header starting with "Station MAC". Neither
// section is RFC4180-strict CSV (fields may contain stray commas in the
// ESSID column) so this walks fixed column indices rather than using
// encoding/csv.
func ParseCSV(data string) domain.ScanResult {
	var result domain.ScanResult
	now := time.Now()

	lines := strings.Split(data, "\n")
	section := 0 // 0 = before AP header, 1 = AP rows, 2 = station rows
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "BSSID,") {
			section = 1
			continue
		}
		if strings.HasPrefix(trimmed, "Station MAC,") {
			section = 2
			continue
		}

		fields := strings.Split(line, ",")
		switch section {
		case 1:
			if ap, ok := parseAPRow(fields, now); ok {
				result.AccessPoints = append(result.AccessPoints, ap)
			}
		case 2:
			if st, ok := parseStationRow(fields, now); ok {
				result.Stations = append(result.Stations, st)
			}
		}
	}
	return result
}

// AP row columns: BSSID,First seen,Last seen,channel,Speed,Privacy,Cipher,
// Authentication,Power,# beacons,# IV,LAN IP,ID-length,ESSID,Key
func parseAPRow(fields []string, now time.Time) (domain.AccessPoint, bool) {
	if len(fields) < 14 {
		return domain.AccessPoint{}, false
	}
	bssid := strings.TrimSpace(fields[0])
	if bssid == "" {
		return domain.AccessPoint{}, false
	}
	channel, _ := strconv.Atoi(strings.TrimSpace(fields[3]))
	power, _ := strconv.Atoi(strings.TrimSpace(fields[8]))
	essid := strings.TrimSpace(fields[13])

	return domain.AccessPoint{
		BSSID:      bssid,
		Channel:    channel,
		Privacy:    strings.TrimSpace(fields[5]),
		Power:      power,
		ESSID:      essid,
		HiddenSSID: essid == "",
		LastSeen:   now,
	}, true
}

// Station row columns: Station MAC,First seen,Last seen,Power,# packets,
// BSSID,Probed ESSIDs
func parseStationRow(fields []string, now time.Time) (domain.Station, bool) {
	if len(fields) < 6 {
		return domain.Station{}, false
	}
	mac := strings.TrimSpace(fields[0])
	if mac == "" {
		return domain.Station{}, false
	}
	power, _ := strconv.Atoi(strings.TrimSpace(fields[3]))
	bssid := strings.TrimSpace(fields[5])
	probed := ""
	if len(fields) > 6 {
		probed = strings.TrimSpace(strings.Join(fields[6:], ","))
	}

	return domain.Station{
		MAC:        mac,
		BSSID:      bssid,
		Power:      power,
		ProbedSSID: probed,
		LastSeen:   now,
	}, true
}
