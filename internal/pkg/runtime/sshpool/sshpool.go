// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sshpool implements the SSH connection pool: sessions are cached
// by `user@host`, probed for liveness before reuse, and
// authenticated in a fixed precedence order with certificate problems
// downgraded to warnings rather than failures.
package sshpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/runbookhq/runcore/internal/pkg/rlog"
	"github.com/runbookhq/runcore/internal/pkg/runtime/events"
)

// Auth lets a caller override authentication for a single Connect call,
// taking precedence over every other method.
type Auth struct {
	Signer ssh.Signer
}

// Hints carries the identity key / certificate path attached to an
// ssh-connect block, consumed when the caller-passed Auth is absent.
type Hints struct {
	IdentityKeyPath string
	CertificatePath string
}

// Warning records a non-fatal problem encountered while connecting,
// surfaced to the caller alongside a usable session.
type Warning struct {
	Kind events.Kind
	Host string
	Path string
	Err  error
}

func (w Warning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("%s: %s: %v", w.Kind, w.Host, w.Err)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Host)
}

// Session is a pooled, shared SSH connection. Callers obtain one through
// Connect and hold it for the duration of a single remote command; the
// pool itself continues to own the underlying transport.
type Session struct {
	User string
	Host string

	client    *ssh.Client
	lastAlive time.Time
}

// Pool caches Sessions by "user@host". At most one live session per key
// exists at any time; Connect serializes dial attempts for a given key via
// the pool-wide mutex, so two connects to the same key never race.
type Pool struct {
	mu               sync.Mutex
	sessions         map[string]*Session
	bus              events.Bus
	keepaliveTimeout time.Duration
	dialTimeout      time.Duration
}

// New returns an empty pool. bus may be nil (events.NoOp is used).
func New(bus events.Bus, keepaliveTimeout, dialTimeout time.Duration) *Pool {
	if bus == nil {
		bus = events.NoOp{}
	}
	if keepaliveTimeout <= 0 {
		keepaliveTimeout = 5 * time.Second
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Pool{
		sessions:         make(map[string]*Session),
		bus:              bus,
		keepaliveTimeout: keepaliveTimeout,
		dialTimeout:      dialTimeout,
	}
}

func key(userName, host string) string {
	return userName + "@" + host
}

// resolveUser picks the username by precedence: block override > caller >
// SSH config file > current OS user. The core does not parse an SSH
// config file; that tier falls through to the OS user.
func resolveUser(blockUser, callerUser string) string {
	if blockUser != "" {
		return blockUser
	}
	if callerUser != "" {
		return callerUser
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "root"
}

// Connect returns a live, pooled session for user@host, dialing and
// authenticating a fresh transport only when no cached session passes its
// liveness probe. cancel, if non-nil, aborts an in-flight dial when closed.
func (p *Pool) Connect(ctx context.Context, blockUser, callerUser, host string, auth *Auth, hints Hints, cancel <-chan struct{}) (*Session, []Warning, error) {
	u := resolveUser(blockUser, callerUser)
	k := key(u, host)

	p.mu.Lock()
	defer p.mu.Unlock()

	if sess, ok := p.sessions[k]; ok {
		if p.probe(sess) {
			return sess, nil, nil
		}
		p.evictLocked(k)
	}

	sess, warnings, err := p.dial(ctx, u, host, auth, hints, cancel)
	if err != nil {
		p.bus.Emit(events.Event{
			Kind: events.KindSshConnectionFailed,
			Data: events.SshConnectionFailedData{Host: host, Error: err.Error()},
		})
		return nil, warnings, err
	}

	p.sessions[k] = sess
	p.bus.Emit(events.Event{
		Kind: events.KindSshConnected,
		Data: events.SshConnectedData{Host: host, Username: u},
	})
	return sess, warnings, nil
}

// probe sends a keepalive request and reports whether the session is
// still usable, bounded by the pool's keepalive timeout.
func (p *Pool) probe(sess *Session) bool {
	done := make(chan bool, 1)
	go func() {
		// The server need not recognize "keepalive@runcore"; a clean
		// reject still proves the transport is alive.
		_, _, err := sess.client.SendRequest("keepalive@runcore", true, nil)
		done <- err == nil
	}()

	select {
	case ok := <-done:
		if ok {
			sess.lastAlive = time.Now()
		}
		return ok
	case <-time.After(p.keepaliveTimeout):
		return false
	}
}

func (p *Pool) dial(ctx context.Context, u, host string, auth *Auth, hints Hints, cancel <-chan struct{}) (*Session, []Warning, error) {
	var warnings []Warning

	methods, certWarnings := p.authMethods(u, auth, hints)
	warnings = append(warnings, certWarnings...)

	if len(methods) == 0 {
		return nil, warnings, fmt.Errorf("ssh %s@%s: no usable authentication method", u, host)
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "22")
	}

	cfg := &ssh.ClientConfig{
		User:            u,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host-key verification policy belongs to the host, not the pool
		Timeout:         p.dialTimeout,
	}

	type result struct {
		client *ssh.Client
		err    error
	}
	resCh := make(chan result, 1)

	go func() {
		client, err := ssh.Dial("tcp", addr, cfg)
		resCh <- result{client, err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, warnings, fmt.Errorf("ssh dial %s: %w", addr, res.err)
		}
		return &Session{User: u, Host: host, client: res.client, lastAlive: time.Now()}, warnings, nil
	case <-cancel:
		return nil, warnings, fmt.Errorf("ssh dial %s: cancelled", addr)
	case <-ctx.Done():
		return nil, warnings, fmt.Errorf("ssh dial %s: %w", addr, ctx.Err())
	}
}

// authMethods builds the ordered list of ssh.AuthMethod: explicit Auth
// argument, then block-level identity key (+ optional certificate,
// downgraded to a warning on failure), then SSH agent, then default keys
// under ~/.ssh.
func (p *Pool) authMethods(u string, auth *Auth, hints Hints) ([]ssh.AuthMethod, []Warning) {
	var (
		methods  []ssh.AuthMethod
		warnings []Warning
	)

	if auth != nil && auth.Signer != nil {
		return []ssh.AuthMethod{ssh.PublicKeys(auth.Signer)}, nil
	}

	if hints.IdentityKeyPath != "" {
		if signer, warn, err := loadSigner(hints.IdentityKeyPath, hints.CertificatePath); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
			if warn != nil {
				warnings = append(warnings, *warn)
			}
		} else {
			rlog.Debugf("ssh: identity key %s unusable: %v", hints.IdentityKeyPath, err)
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			ac := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(ac.Signers))
		}
	}

	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		home, err := os.UserHomeDir()
		if err != nil {
			break
		}
		path := filepath.Join(home, ".ssh", name)
		if signer, _, err := loadSigner(path, path+"-cert.pub"); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	return methods, warnings
}

// loadSigner parses a private key at keyPath, optionally attaching an
// adjacent certPath certificate. A certificate load/parse/validity failure
// is returned as a *Warning alongside the bare-key signer, never as an
// error. Agent-resident certificates are unsupported; an on-disk
// *-cert.pub next to the key file is the supported path.
func loadSigner(keyPath, certPath string) (ssh.Signer, *Warning, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse key %s: %w", keyPath, err)
	}

	if certPath == "" {
		return signer, nil, nil
	}

	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		// No certificate present is normal, not a warning.
		return signer, nil, nil
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey(certBytes)
	if err != nil {
		return signer, &Warning{Kind: events.KindSshCertificateLoadFailed, Path: certPath, Err: err}, nil
	}

	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return signer, &Warning{Kind: events.KindSshCertificateLoadFailed, Path: certPath, Err: fmt.Errorf("not a certificate")}, nil
	}

	now := uint64(time.Now().Unix())
	switch {
	case cert.ValidBefore != ssh.CertTimeInfinity && now >= cert.ValidBefore:
		return signer, &Warning{Kind: events.KindSshCertificateExpired, Path: certPath}, nil
	case now < cert.ValidAfter:
		return signer, &Warning{Kind: events.KindSshCertificateNotYetValid, Path: certPath}, nil
	}

	certSigner, err := ssh.NewCertSigner(cert, signer)
	if err != nil {
		return signer, &Warning{Kind: events.KindSshCertificateLoadFailed, Path: certPath, Err: err}, nil
	}
	return certSigner, nil, nil
}

// Disconnect closes and evicts the session cached for user@host, if any.
// Idempotent.
func (p *Pool) Disconnect(userName, host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(userName, host)
	p.evictLocked(k)
}

func (p *Pool) evictLocked(k string) {
	sess, ok := p.sessions[k]
	if !ok {
		return
	}
	delete(p.sessions, k)
	_ = sess.client.Close()
	p.bus.Emit(events.Event{Kind: events.KindSshDisconnected, Data: events.SshDisconnectedData{Host: sess.Host}})
}

// RemoteExec runs command on sess, prefixed with one `export K='V'` line
// per entry of env, streaming stdout/stderr to the given writers and
// returning the exit code.
func (p *Pool) RemoteExec(ctx context.Context, sess *Session, env map[string]string, command string, stdout, stderr io.Writer, cancel <-chan struct{}) (int, error) {
	session, err := sess.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("ssh new session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	full := EscapeEnv(env) + command

	done := make(chan error, 1)
	go func() { done <- session.Run(full) }()

	select {
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if ok := asExitError(err, &exitErr); ok {
			return exitErr.ExitStatus(), nil
		}
		return -1, fmt.Errorf("ssh exec: %w", err)
	case <-cancel:
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return -1, fmt.Errorf("ssh exec: cancelled")
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return -1, fmt.Errorf("ssh exec: %w", ctx.Err())
	}
}

func asExitError(err error, target **ssh.ExitError) bool {
	if ee, ok := err.(*ssh.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// EscapeEnv renders env as one `export K='V'` line per entry, POSIX
// single-quote-escaped (every `'` becomes `'\''`). An empty map renders
// as the empty string.
func EscapeEnv(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	var b bytes.Buffer
	for k, v := range env {
		b.WriteString("export ")
		b.WriteString(k)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(v, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
