// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package afdconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/logger"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// graphicalFold strips combining marks and folds fullwidth/halfwidth
// variants to their canonical form before truncation, so "graphical
// bytes" (§3.1, §8.3) reflects what an operator actually sees rather
// than a raw UTF-8 byte count that may include combining sequences.
var graphicalFold = runes.Remove(runes.In(norm.Mn))

// truncateGraphical returns s truncated to at most maxBytes graphical
// bytes, and whether truncation occurred.
func truncateGraphical(s string, maxBytes int) (string, bool) {
	folded := width.Fold.String(s)
	if clean, _, err := transform.String(graphicalFold, folded); err == nil {
		folded = clean
	}
	if len(folded) <= maxBytes {
		return folded, false
	}
	b := []byte(folded)
	for maxBytes > 0 && !isRuneStart(b[maxBytes]) {
		maxBytes--
	}
	return string(b[:maxBytes]), true
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// readLine reads one line, trims trailing newline and surrounding
// whitespace, and reports whether it is a comment/blank line to skip.
// Grounded on the corpus's bufio.Reader.ReadString('\n') idiom for
// line-oriented config parsing.
func readLine(r *bufio.Reader) (string, bool, error) {
	raw, err := r.ReadString('\n')
	if len(raw) == 0 {
		if err == io.EOF {
			return "", false, io.EOF
		}
		return "", false, err
	}

	line := strings.TrimRight(raw, "\r\n")
	line = strings.TrimSpace(line)

	if line == "" || strings.HasPrefix(line, "#") {
		return "", true, nil
	}

	if err == io.EOF {
		return line, false, io.EOF
	}
	return line, false, nil
}

// Parse reads an AFD_MON_CONFIG stream (§4.C) and returns the parsed
// list of ConfigEntry; it does not call Validate. Parse errors in a single line produce a warning
// through l and skip that line rather than aborting the whole file,
// matching the shim's tolerance for malformed trailing fields.
func Parse(r io.Reader, l logger.Logger) ([]*ConfigEntry, error) {
	br := bufio.NewReader(r)

	seenAlias := make(map[string]bool)
	var entries []*ConfigEntry

	lineNo := 0
	for {
		lineNo++
		line, skip, err := readLine(br)
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ConfigReadError)
		}
		if skip {
			if err == io.EOF {
				break
			}
			continue
		}
		if line != "" {
			entry, perr := parseLine(line, lineNo, l)
			if perr != nil {
				l.Warn("skipping malformed AFD_MON_CONFIG line", "line", lineNo, "err", perr)
			} else {
				if seenAlias[entry.Alias] {
					l.Warn("duplicate alias in AFD_MON_CONFIG, skipping", "alias", entry.Alias, "line", lineNo)
				} else {
					seenAlias[entry.Alias] = true
					entries = append(entries, entry)
				}
			}
		}
		if err == io.EOF {
			break
		}
	}

	return entries, nil
}

// parseLine parses one whitespace-delimited line:
//
//	alias host[|/host2] port[|/port2] poll_s connect_s disconnect_s options rcmd [user1->user2]...
func parseLine(line string, lineNo int, l logger.Logger) (*ConfigEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("expected at least alias and host, got %d fields", len(fields))
	}

	e := &ConfigEntry{SourceLine: lineNo}

	alias, truncated := truncateGraphical(fields[0], constants.MaxAliasBytes)
	if truncated {
		l.Warn("alias truncated to max graphical bytes", "line", lineNo, "alias", alias)
	}
	e.Alias = alias

	hostField := fields[1]
	e.Switching, e.Host[0], e.Host[1] = splitHostField(hostField)
	applyHostTruncation(&e.Host[0], lineNo, l)
	applyHostTruncation(&e.Host[1], lineNo, l)

	e.PollIntervalS = constants.DefaultPollIntervalS
	e.ConnectTimeS = constants.DefaultConnectTimeS
	e.DisconnectTimeS = constants.DefaultDisconnectTimeS
	e.Rcmd = constants.DefaultRcmd
	e.Port[0] = constants.DefaultPort
	e.Port[1] = constants.DefaultPort

	if len(fields) > 2 {
		e.Port[0] = parsePort(fields[2], e.Port[0])
		e.Port[1] = e.Port[0]
	}
	if len(fields) > 3 {
		if v, err := strconv.Atoi(fields[3]); err == nil && v >= 0 {
			e.PollIntervalS = v
		}
	}
	if len(fields) > 4 {
		if v, err := strconv.Atoi(fields[4]); err == nil && v >= 0 {
			e.ConnectTimeS = v
		}
	}
	if len(fields) > 5 {
		if v, err := strconv.Atoi(fields[5]); err == nil && v >= 0 {
			e.DisconnectTimeS = v
		}
	}
	if len(fields) > 6 {
		if v, err := strconv.ParseUint(fields[6], 0, 32); err == nil {
			e.Options = Options(v)
		}
	}
	if len(fields) > 7 {
		switch fields[7] {
		case "-":
			// "-" is the group-header placeholder: strings.Fields never
			// yields an empty token, so a literal dash is how a config
			// line spells "no rcmd" (§4.B "rows whose rcmd is empty
			// denote a group header").
			e.Rcmd = ""
		case "rsh", "ssh":
			e.Rcmd = fields[7]
		default:
			return nil, fmt.Errorf("invalid rcmd %q", fields[7])
		}
	}

	for _, pair := range fields[8:] {
		if len(e.ConvertUsername) >= constants.MaxConvertUsernamePairs {
			l.Warn("too many convert_username pairs, ignoring remainder", "line", lineNo)
			break
		}
		parts := strings.SplitN(pair, "->", 2)
		if len(parts) != 2 {
			l.Warn("malformed convert_username pair, ignoring", "line", lineNo, "pair", pair)
			continue
		}
		e.ConvertUsername = append(e.ConvertUsername, UsernameConversion{From: parts[0], To: parts[1]})
	}

	return e, nil
}

func applyHostTruncation(host *string, lineNo int, l logger.Logger) bool {
	truncated2, trunc := truncateGraphical(*host, constants.MaxHostBytes)
	if trunc {
		l.Warn("host truncated to max bytes", "line", lineNo, "host", truncated2)
	}
	*host = truncated2
	return trunc
}

// splitHostField parses "host", "host1|host2" (auto switching) or
// "host1/host2" (user switching).
func splitHostField(field string) (Switching, string, string) {
	if idx := strings.IndexByte(field, '|'); idx >= 0 {
		return SwitchingAuto, field[:idx], field[idx+1:]
	}
	if idx := strings.IndexByte(field, '/'); idx >= 0 {
		return SwitchingUser, field[:idx], field[idx+1:]
	}
	return SwitchingNone, field, field
}

// parsePort parses a decimal port, reverting to def on any
// non-numeric or out-of-range input (§4.C "Non-numeric ports revert
// to DEFAULT_PORT").
func parsePort(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > 65535 {
		return def
	}
	return v
}

// Validate applies the switching=none host/port symmetry: for such an
// entry Host[1] and Port[1] are overwritten with Host[0] and Port[0].
// It does not touch the toggle (ConfigEntry has no toggle field),
// performs no group-header checks, and always returns nil.
func Validate(entries []*ConfigEntry) error {
	for _, e := range entries {
		if e.Switching == SwitchingNone {
			e.Host[1] = e.Host[0]
			e.Port[1] = e.Port[0]
		}
	}
	return nil
}
