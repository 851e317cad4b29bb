// Copyright (C) 2020 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package loglist

// AllLogs returns the RFC 6962 and static-ct-api logs of every operator.
func (list *List) AllLogs() []*Log {
	logs := []*Log{}
	for operator := range list.Operators {
		logs = append(logs, list.Operators[operator].AllLogs()...)
	}
	return logs
}

func (operator *Operator) AllLogs() []*Log {
	logs := make([]*Log, 0, len(operator.Logs)+len(operator.TiledLogs))
	for i := range operator.Logs {
		logs = append(logs, &operator.Logs[i])
	}
	for i := range operator.TiledLogs {
		logs = append(logs, &operator.TiledLogs[i])
	}
	return logs
}

func (log *Log) LogIDString() string {
	return log.LogID.Base64String()
}
