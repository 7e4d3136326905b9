// Package cracking resolves wordlists and runs aircrack-ng against a
// capture file, the Go counterpart of cracking_manager.py.
package cracking

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Manager finds wordlists and drives aircrack-ng.
type Manager struct {
	shell       ports.ShellRunner
	log         *logging.Logger
	wordlistDir string
	tmpDir      string
}

// New returns a Manager that searches wordlistDir for named wordlists.
func New(shell ports.ShellRunner, wordlistDir string) *Manager {
	return &Manager{shell: shell, log: logging.Component("cracking"), wordlistDir: wordlistDir, tmpDir: os.TempDir()}
}

var _ ports.CrackingManager = (*Manager)(nil)

// FindWordlist resolves name to an absolute path, checking in order: name
// used as-is if it's already an absolute path, name and name.txt under
// wordlistDir, then name.gz and name.txt.gz under wordlistDir (decompressed
// to a temp file on first use, mirroring
// _get_temp_uncompressed_wordlist_path).
func (m *Manager) FindWordlist(ctx context.Context, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	candidates := []string{
		filepath.Join(m.wordlistDir, name),
		filepath.Join(m.wordlistDir, name+".txt"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	gzCandidates := []string{
		filepath.Join(m.wordlistDir, name+".gz"),
		filepath.Join(m.wordlistDir, name+".txt.gz"),
	}
	for _, c := range gzCandidates {
		if _, err := os.Stat(c); err == nil {
			return m.decompressToTemp(c)
		}
	}

	return "", fmt.Errorf("wordlist %q not found under %s", name, m.wordlistDir)
}

func (m *Manager) decompressToTemp(gzPath string) (string, error) {
	tmpPath := filepath.Join(m.tmpDir, "capgate-"+filepath.Base(strings.TrimSuffix(gzPath, ".gz")))
	if _, err := os.Stat(tmpPath); err == nil {
		return tmpPath, nil
	}

	src, err := os.Open(gzPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	gzReader, err := gzip.NewReader(src)
	if err != nil {
		return "", fmt.Errorf("open gzip wordlist %s: %w", gzPath, err)
	}
	defer gzReader.Close()

	dst, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, gzReader); err != nil {
		return "", fmt.Errorf("decompress wordlist %s: %w", gzPath, err)
	}
	return tmpPath, nil
}

var reKeyFound = regexp.MustCompile(`KEY FOUND!\s*\[\s*(.+?)\s*\]`)

// Crack runs aircrack-ng against capFile with wordlistPath and parses its
// "KEY FOUND! [ passphrase ]" output line.
func (m *Manager) Crack(ctx context.Context, capFile, bssid, wordlistPath string) (domain.CrackResult, error) {
	out, err := m.shell.Run(ctx, []string{
		"aircrack-ng", "-a", "2", "-b", bssid, "-w", wordlistPath, capFile,
	}, ports.RunOptions{AllowFailure: true})
	if err != nil {
		return domain.CrackResult{}, fmt.Errorf("run aircrack-ng: %w", err)
	}

	result := domain.CrackResult{CapFile: capFile, BSSID: bssid, Wordlist: wordlistPath}
	if match := reKeyFound.FindStringSubmatch(out); len(match) == 2 {
		result.Found = true
		result.Key = match[1]
	}
	return result, nil
}
