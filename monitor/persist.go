package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// The state file is a JSON object keyed by pipeline name. Unknown pipeline
// names round-trip untouched, so new pipelines can appear without a format
// change and old binaries keep foreign entries intact.

// SaveStatus persists the full status map. Write failures are logged and the
// in-memory state stays authoritative for this process.
func (r *Registry) SaveStatus() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.saveLocked()
}

// saveLocked writes the state file atomically: marshal, write to a temp file
// in the same directory, fsync, rename over the target. Readers never observe
// a partially written file. Caller must hold at least the read lock.
func (r *Registry) saveLocked() {
	if r.cfg.StatusFilePath == "" {
		return
	}

	data, err := json.MarshalIndent(r.statuses, "", "  ")
	if err != nil {
		r.log.Errorw("Failed to marshal pipeline status", "error", err)
		return
	}

	dir := filepath.Dir(r.cfg.StatusFilePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		r.log.Errorw("Failed to create status directory", "path", dir, "error", err)
		return
	}

	tmp, err := os.CreateTemp(dir, ".pipeline_status-*.tmp")
	if err != nil {
		r.log.Errorw("Failed to create temp status file", "error", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		r.log.Errorw("Failed to write status file", "path", tmpName, "error", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		r.log.Errorw("Failed to sync status file", "path", tmpName, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		r.log.Errorw("Failed to close status file", "path", tmpName, "error", err)
		return
	}

	if err := os.Rename(tmpName, r.cfg.StatusFilePath); err != nil {
		os.Remove(tmpName)
		r.log.Errorw("Failed to replace status file",
			"path", r.cfg.StatusFilePath,
			"error", err)
	}
}

// LoadStatus replaces in-memory state with the persisted file. Idempotent and
// safe before every read. A missing or corrupt file yields an empty registry
// rather than an error.
func (r *Registry) LoadStatus() {
	if r.cfg.StatusFilePath == "" {
		return
	}

	data, err := os.ReadFile(r.cfg.StatusFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warnw("Failed to read status file, starting empty",
				"path", r.cfg.StatusFilePath,
				"error", err)
		}
		r.mu.Lock()
		r.statuses = make(map[string]*JobStatus)
		r.mu.Unlock()
		return
	}

	statuses := make(map[string]*JobStatus)
	if err := json.Unmarshal(data, &statuses); err != nil {
		r.log.Warnw("Corrupt status file, starting empty",
			"path", r.cfg.StatusFilePath,
			"error", err)
		statuses = make(map[string]*JobStatus)
	}
	for name, st := range statuses {
		if st == nil {
			statuses[name] = newJobStatus()
			continue
		}
		if !IsValidState(string(st.CurrentState)) {
			r.log.Warnw("Unknown pipeline state in status file, resetting to idle",
				"pipeline", name,
				"state", st.CurrentState)
			st.CurrentState = StateIdle
		}
	}

	r.mu.Lock()
	r.statuses = statuses
	r.mu.Unlock()
}
