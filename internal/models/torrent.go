// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "strings"

// TorrentGroup identifies a torrent by the pair the lookup service keys
// on. Immutable once a batch query has been submitted.
type TorrentGroup struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	SavePath string `json:"savePath,omitempty"`
}

// Valid reports whether the group carries enough identity for a lookup.
func (g TorrentGroup) Valid() bool {
	return strings.TrimSpace(g.Name) != "" && g.Size > 0
}
