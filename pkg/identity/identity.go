// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the username-conversion pairs a
// ConfigEntry may carry (§3.1 convert_username) against an optional
// directory service, falling back to the static pairs when no
// directory is configured.
package identity

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/logger"
)

// Resolver validates a ConfigEntry's convert_username pairs against a
// directory group when a directory is configured. It only filters the
// static pairs; it never adds pairs from the directory.
type Resolver struct {
	enabled bool
	url     string
	baseDN  string
	bindDN  string
	bindPwd string
	groupDN string

	l    logger.Logger
	mu   sync.Mutex
	conn *ldap.Conn
}

// NewResolver builds a Resolver. When enabled is false every
// Resolve call is a passthrough returning the entry's static pairs.
func NewResolver(l logger.Logger, enabled bool, url, baseDN, bindDN, bindPwd, groupDN string) *Resolver {
	return &Resolver{
		enabled: enabled,
		url:     url,
		baseDN:  baseDN,
		bindDN:  bindDN,
		bindPwd: bindPwd,
		groupDN: groupDN,
		l:       l,
	}
}

func (r *Resolver) dial() (*ldap.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		if _, err := r.conn.Search(ldap.NewSearchRequest(r.baseDN, ldap.ScopeBaseObject, 0, 0, 1, false,
			"(objectClass=*)", nil, nil)); err == nil {
			return r.conn, nil
		}
		r.conn.Close()
		r.conn = nil
	}

	conn, err := ldap.DialURL(r.url, ldap.DialWithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	if err != nil {
		return nil, errors.Wrap(err, errors.ConfigLoadFailed).WithMetadata("ldap_url", r.url)
	}
	conn.SetTimeout(5 * time.Second)

	if r.bindDN != "" {
		if err := conn.Bind(r.bindDN, r.bindPwd); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, errors.ConfigLoadFailed).WithMetadata("bind_dn", r.bindDN)
		}
	}

	r.conn = conn
	return conn, nil
}

// Resolve returns the username-conversion pairs to use for entry. When
// the directory is disabled it returns the entry's static pairs
// unchanged; when the lookup fails it does the same and logs a
// warning. On a successful lookup it returns only the pairs whose
// target is a member of the configured group, dropping the rest.
func (r *Resolver) Resolve(entry *afdconfig.ConfigEntry) []afdconfig.UsernameConversion {
	if !r.enabled || r.groupDN == "" {
		return entry.ConvertUsername
	}

	conn, err := r.dial()
	if err != nil {
		r.l.Warn("LDAP unavailable, using static convert_username pairs", "alias", entry.Alias, "err", err)
		return entry.ConvertUsername
	}

	members, err := r.groupMembers(conn)
	if err != nil {
		r.l.Warn("LDAP group lookup failed, using static convert_username pairs", "alias", entry.Alias, "err", err)
		return entry.ConvertUsername
	}

	resolved := make([]afdconfig.UsernameConversion, 0, len(entry.ConvertUsername))
	for _, pair := range entry.ConvertUsername {
		if members[pair.To] {
			resolved = append(resolved, pair)
		} else {
			r.l.Warn("convert_username target not a member of configured group, dropping pair",
				"alias", entry.Alias, "from", pair.From, "to", pair.To)
		}
	}
	return resolved
}

func (r *Resolver) groupMembers(conn *ldap.Conn) (map[string]bool, error) {
	req := ldap.NewSearchRequest(
		r.groupDN, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", []string{"member", "memberUid"}, nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search group %s: %w", r.groupDN, err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("group %s not found", r.groupDN)
	}

	members := make(map[string]bool)
	entry := res.Entries[0]
	for _, dn := range entry.GetAttributeValues("member") {
		members[dn] = true
	}
	for _, uid := range entry.GetAttributeValues("memberUid") {
		members[uid] = true
	}
	return members, nil
}

// Close releases the underlying LDAP connection, if any.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}
