// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package logregistry

import (
	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/loglist"
)

// EntriesFromLogList returns an Entry for every log in list which is
// trusted to have issued SCTs.  Qualified and usable logs are trusted
// without bound; readonly and retired logs only for SCTs timestamped at or
// before the state change.  Pending and rejected logs are omitted.
func EntriesFromLogList(list *loglist.List) []Entry {
	entries, _ := entriesFromLogList(list)
	return entries
}

// entriesFromLogList is EntriesFromLogList, also returning the IDs of the
// logs which list does not trust at all.
func entriesFromLogList(list *loglist.List) (entries []Entry, distrusted []cttypes.LogID) {
	for i := range list.Operators {
		operator := &list.Operators[i]
		for _, log := range operator.AllLogs() {
			entry := Entry{
				Key:         log.Key,
				Operator:    operator.Name,
				Description: log.Description,
			}
			switch state := &log.State; {
			case state.Rejected != nil, state.Pending != nil:
				distrusted = append(distrusted, entry.Key.LogID())
				continue
			case state.Retired != nil:
				entry.ValidUntil = state.Retired.Timestamp
			case state.Readonly != nil:
				entry.ValidUntil = state.Readonly.Timestamp
			case state.Usable != nil, state.Qualified != nil:
			default:
				distrusted = append(distrusted, entry.Key.LogID())
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, distrusted
}

func FromLogList(list *loglist.List) (*Registry, error) {
	return New(EntriesFromLogList(list))
}
