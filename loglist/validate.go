// Copyright (C) 2020 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package loglist

import (
	"crypto/sha256"
	"fmt"

	"software.sslmate.com/src/sctverify/cttypes"
)

func (list *List) Validate() error {
	seen := make(map[cttypes.LogID]string)
	for i := range list.Operators {
		operator := &list.Operators[i]
		if err := operator.Validate(); err != nil {
			return fmt.Errorf("problem with %dth operator (%s): %w", i, operator.Name, err)
		}
		for _, log := range operator.AllLogs() {
			if other, exists := seen[log.LogID]; exists {
				return fmt.Errorf("log %s is listed under both %q and %q", log.LogIDString(), other, operator.Name)
			}
			seen[log.LogID] = operator.Name
		}
	}
	return nil
}

func (operator *Operator) Validate() error {
	for i := range operator.Logs {
		if err := operator.Logs[i].Validate(); err != nil {
			return fmt.Errorf("problem with %dth log (%s): %w", i, operator.Logs[i].LogIDString(), err)
		}
	}
	for i := range operator.TiledLogs {
		if err := operator.TiledLogs[i].Validate(); err != nil {
			return fmt.Errorf("problem with %dth tiled log (%s): %w", i, operator.TiledLogs[i].LogIDString(), err)
		}
	}
	return nil
}

func (log *Log) Validate() error {
	realLogID := sha256.Sum256(log.Key)
	if log.LogID != realLogID {
		return fmt.Errorf("log ID does not match log key")
	}
	if log.State.count() > 1 {
		return fmt.Errorf("log has more than one state")
	}
	if log.TemporalInterval != nil && !log.TemporalInterval.StartInclusive.Before(log.TemporalInterval.EndExclusive) {
		return fmt.Errorf("temporal interval is empty")
	}
	return nil
}
