// Package atomicfile implements the write-through-temp-then-rename durability
// pattern used by every persistence layer in the control plane (spec §2,
// §4.9, §9). It is the generalization of the teacher's
// process/state.go SaveState/LoadState pair, lifted out so State
// Persistence and the Scheduler's on-disk store share one implementation.
package atomicfile

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON marshals v and writes it to path atomically: encode to a sibling
// ".tmp" file, fsync, then rename over the target. A failure at any step
// leaves the previous file at path untouched (spec §4.9, §8 "atomic writes").
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadJSON reads and unmarshals path into v. Missing files are not an error:
// callers treat "file does not exist" as an empty/default state (spec §4.9,
// §7 "unreadable or malformed files log and behave as no saved state").
// ReadJSON reports whether the file existed and was read.
func ReadJSON(path string, v any) (existed bool, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return false, nil
		}
		logrus.WithError(readErr).WithField("path", path).Warn("failed to read state file, treating as absent")
		return false, nil
	}

	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("failed to parse state file, treating as absent")
		return false, nil
	}

	return true, nil
}

// RemoveIfExists deletes path, treating "already gone" as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
