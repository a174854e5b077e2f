// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package models

import "errors"

// ErrNotFound is wrapped by stores and services when an entity does not exist.
var ErrNotFound = errors.New("not found")
