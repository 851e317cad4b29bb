// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package mozilla reads the CT logs trusted by Firefox from Mozilla's
// CTKnownLogs.h file, and converts them to a loglist.List.
package mozilla

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"software.sslmate.com/src/sctverify/loglist"
)

const maxFileSize = 16 << 20

const (
	StateAdmissible = "Admissible"
	StateRetired    = "Retired"
)

// CTLogInfo describes a certificate transparency log from Mozilla's CTKnownLogs.h
// file.
type CTLogInfo struct {
	Name          string
	State         string // Admissible or Retired
	Timestamp     time.Time
	OperatorIndex int
	Key           []byte
}

// CTLogOperatorInfo describes a CT log operator from Mozilla's CTKnownLogs.h
// file.
type CTLogOperatorInfo struct {
	Name string
	ID   int
}

type KnownLogs struct {
	Logs      []CTLogInfo
	Operators []CTLogOperatorInfo
}

// Parse reads the CTKnownLogs.h content from r.  Blocks enclosed by
// `#ifdef DEBUG` and `#endif` are ignored.
func Parse(r io.Reader) (*KnownLogs, error) {
	scanner := bufio.NewScanner(r)
	skip := 0
	inLogs := false
	inOps := false
	lineno := 0
	known := new(KnownLogs)

	next := func() (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		lineno++
		return strings.TrimSpace(scanner.Text()), nil
	}

	for {
		trimmed, err := next()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			break
		} else if err != nil {
			return nil, err
		}

		switch {
		case strings.HasPrefix(trimmed, "#ifdef DEBUG"):
			skip++
			continue
		case strings.HasPrefix(trimmed, "#endif") && skip > 0:
			skip--
			continue
		case skip > 0:
			continue
		case strings.HasPrefix(trimmed, "const CTLogInfo kCTLogList[]"):
			inLogs = true
			continue
		case strings.HasPrefix(trimmed, "const CTLogOperatorInfo kCTLogOperatorList[]"):
			inOps = true
			continue
		}

		switch {
		case (inLogs || inOps) && trimmed == "};":
			inLogs, inOps = false, false
		case inLogs && strings.HasPrefix(trimmed, "{"):
			log, err := readLogEntry(trimmed, next)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineno, err)
			}
			known.Logs = append(known.Logs, log)
		case inOps && strings.HasPrefix(trimmed, "{"):
			op, err := readOperatorEntry(trimmed)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineno, err)
			}
			known.Operators = append(known.Operators, op)
		}
	}

	if inLogs || inOps {
		return nil, fmt.Errorf("unterminated array: %w", io.ErrUnexpectedEOF)
	}
	return known, nil
}

// Example entry:
//
//	{"Google 'Argon2025h1' log", CTLogState::Admissible,
//	 1748736000000,  // 2025-06-01T00:00:00Z
//	 0,              // operated by Google
//	 "\x30\x59..."
//	 "\x06\x07...",
//	 91},
func readLogEntry(firstLine string, next func() (string, error)) (CTLogInfo, error) {
	var log CTLogInfo

	firstLine = strings.TrimSuffix(strings.TrimPrefix(firstLine, "{"), ",")
	parts := splitCSV(firstLine)
	var statePart string
	switch len(parts) {
	case 2:
		log.Name = trimQuotes(parts[0])
		statePart = parts[1]
	case 1:
		log.Name = trimQuotes(parts[0])
		line, err := next()
		if err != nil {
			return log, err
		}
		statePart = line
	default:
		return log, errors.New("invalid log entry header")
	}
	statePart = strings.TrimSuffix(strings.TrimSpace(statePart), ",")
	log.State = strings.TrimPrefix(statePart, "CTLogState::")
	if log.State != StateAdmissible && log.State != StateRetired {
		return log, fmt.Errorf("log %q has unknown state %q", log.Name, log.State)
	}

	ts, err := readIntField(next)
	if err != nil {
		return log, fmt.Errorf("log %q timestamp: %w", log.Name, err)
	}
	log.Timestamp = time.UnixMilli(ts)

	opIndex, err := readIntField(next)
	if err != nil {
		return log, fmt.Errorf("log %q operator index: %w", log.Name, err)
	}
	log.OperatorIndex = int(opIndex)

	var keyHex strings.Builder
	for {
		line, err := next()
		if err != nil {
			return log, err
		}
		if !strings.HasPrefix(line, "\"") {
			return log, fmt.Errorf("log %q: unexpected line while reading key", log.Name)
		}
		keyHex.WriteString(trimQuotes(strings.TrimSuffix(line, ",")))
		if strings.HasSuffix(line, ",") {
			break
		}
	}
	log.Key, err = decodeHexEscapes(keyHex.String())
	if err != nil {
		return log, fmt.Errorf("log %q key: %w", log.Name, err)
	}

	lenLine, err := next()
	if err != nil {
		return log, err
	}
	keyLen, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(lenLine, "},")))
	if err != nil {
		return log, fmt.Errorf("log %q key length: %w", log.Name, err)
	}
	if len(log.Key) != keyLen {
		return log, fmt.Errorf("log %q key is %d bytes but its declared length is %d", log.Name, len(log.Key), keyLen)
	}
	return log, nil
}

func readIntField(next func() (string, error)) (int64, error) {
	line, err := next()
	if err != nil {
		return 0, err
	}
	value, _, _ := strings.Cut(line, ",")
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func readOperatorEntry(line string) (CTLogOperatorInfo, error) {
	var op CTLogOperatorInfo
	line = strings.TrimSuffix(strings.TrimSpace(line), ",")
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return op, errors.New("invalid operator entry")
	}
	parts := splitCSV(line[1 : len(line)-1])
	if len(parts) != 2 {
		return op, errors.New("invalid operator fields")
	}
	op.Name = trimQuotes(parts[0])
	id, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return op, err
	}
	op.ID = id
	return op, nil
}

func splitCSV(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			inQuote = !inQuote
		} else if c == ',' && !inQuote {
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func decodeHexEscapes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)/4)
	for i := 0; i < len(s); i += 4 {
		if i+3 >= len(s) || s[i] != '\\' || s[i+1] != 'x' {
			return nil, errors.New("invalid escape")
		}
		b, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(b))
	}
	return out, nil
}

// List converts the known logs to a loglist.List.  Admissible logs are
// usable from their timestamp; retired logs are retired at theirs.
func (known *KnownLogs) List() (*loglist.List, error) {
	list := &loglist.List{Operators: make([]loglist.Operator, len(known.Operators))}
	index := make(map[int]int, len(known.Operators))
	for i, op := range known.Operators {
		list.Operators[i].Name = op.Name
		index[op.ID] = i
	}
	for _, log := range known.Logs {
		i, ok := index[log.OperatorIndex]
		if !ok {
			return nil, fmt.Errorf("log %q has unknown operator index %d", log.Name, log.OperatorIndex)
		}
		entry := loglist.Log{
			Key:         log.Key,
			LogID:       sha256.Sum256(log.Key),
			Description: log.Name,
		}
		switch log.State {
		case StateAdmissible:
			entry.State.Usable = &struct {
				Timestamp time.Time `json:"timestamp"`
			}{Timestamp: log.Timestamp}
		case StateRetired:
			entry.State.Retired = &struct {
				Timestamp time.Time `json:"timestamp"`
			}{Timestamp: log.Timestamp}
		}
		list.Operators[i].Logs = append(list.Operators[i].Logs, entry)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	return list, nil
}

func Load(ctx context.Context, urlOrFile string) (*loglist.List, error) {
	var r io.ReadCloser
	if strings.HasPrefix(urlOrFile, "https://") {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, urlOrFile, nil)
		if err != nil {
			return nil, err
		}
		response, err := http.DefaultClient.Do(request)
		if err != nil {
			return nil, err
		}
		if response.StatusCode != http.StatusOK {
			response.Body.Close()
			return nil, fmt.Errorf("%s: %s", urlOrFile, response.Status)
		}
		r = response.Body
	} else {
		file, err := os.Open(urlOrFile)
		if err != nil {
			return nil, err
		}
		r = file
	}
	defer r.Close()

	content, err := io.ReadAll(io.LimitReader(r, maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxFileSize {
		return nil, fmt.Errorf("%s: file is larger than %d bytes", urlOrFile, maxFileSize)
	}
	known, err := Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", urlOrFile, err)
	}
	return known.List()
}
