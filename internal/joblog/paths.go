// Package joblog stores per-job output logs on disk. Every line a mesh or
// solver run produces is appended to a log file, so readers can tail or
// replay output after the in-memory progress buffer has moved on.
package joblog

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathManager handles log file path construction and directory management.
type PathManager struct {
	baseDir string
}

// NewPathManager creates a new PathManager with the given base directory.
// The base directory is typically <data_dir>/logs.
func NewPathManager(baseDir string) *PathManager {
	return &PathManager{baseDir: baseDir}
}

// BaseDir returns the base log directory.
func (p *PathManager) BaseDir() string {
	return p.baseDir
}

// CaseDir returns the log directory for a specific case.
// Path format: <baseDir>/<caseID>/
func (p *PathManager) CaseDir(caseID string) string {
	return filepath.Join(p.baseDir, caseID)
}

// JobLogPath returns the full path for a job's log file.
// Path format: <baseDir>/<caseID>/<jobID>.log
func (p *PathManager) JobLogPath(caseID, jobID string) string {
	return filepath.Join(p.baseDir, caseID, jobID+".log")
}

// EnsureCaseDir creates the case log directory if it doesn't exist.
// Returns the case directory path.
func (p *PathManager) EnsureCaseDir(caseID string) (string, error) {
	dir := p.CaseDir(caseID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create case log directory: %w", err)
	}
	return dir, nil
}

// EnsureJobLog ensures the parent directory exists for a job log file.
// Returns the full log file path.
func (p *PathManager) EnsureJobLog(caseID, jobID string) (string, error) {
	if _, err := p.EnsureCaseDir(caseID); err != nil {
		return "", err
	}
	return p.JobLogPath(caseID, jobID), nil
}

// LogExists checks if a log file exists for the given job.
func (p *PathManager) LogExists(caseID, jobID string) bool {
	path := p.JobLogPath(caseID, jobID)
	_, err := os.Stat(path)
	return err == nil
}

// RemoveJobLog removes a job's log file if it exists.
func (p *PathManager) RemoveJobLog(caseID, jobID string) error {
	path := p.JobLogPath(caseID, jobID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove job log: %w", err)
	}
	return nil
}

// RemoveCaseLogs removes all log files for a case.
func (p *PathManager) RemoveCaseLogs(caseID string) error {
	dir := p.CaseDir(caseID)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove case logs: %w", err)
	}
	return nil
}

// ListJobLogs returns a list of job IDs that have log files for the given case.
func (p *PathManager) ListJobLogs(caseID string) ([]string, error) {
	dir := p.CaseDir(caseID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read case log directory: %w", err)
	}

	var jobs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := filepath.Ext(name); ext == ".log" {
			jobs = append(jobs, name[:len(name)-len(ext)])
		}
	}
	return jobs, nil
}
