// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package lite

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/jcodagnone/ocomatch/errs"
)

// FileSHA256 returns the hex encoded SHA-256 checksum of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", errs.IO(path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.IO(path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
