// Package gpgctx implements an isolated signing environment: a scoped
// GPG home directory seeded with one imported key, with accessors
// shaped for splicing into the varied argv conventions expected by
// debsign, mk-build-deps, rpm --resign, and aptly publish.
package gpgctx

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdidev/pkgforge/internal/procrunner"
	"github.com/pkg/errors"
)

// Config carries the inputs needed to construct a Context.
type Config struct {
	// KeyFile is the path to the private key material to import.
	KeyFile string
	// ID, if set, selects a specific key by the last 8 hex digits of its
	// fingerprint. When empty, the first secret key listed is used.
	ID string
	// UID, if set, selects which uid record is reported by UID(). When
	// empty, the key's first uid is used.
	UID string
	// Passphrase protects the imported key.
	Passphrase string
}

// Context is an ephemeral, run-scoped GPG signing environment.
type Context struct {
	dir        string
	keyID      string // full fingerprint, uppercase
	uid        string
	passphrase string
	wrapper    string
}

// New imports cfg.KeyFile into a freshly created private GPG home and
// resolves the key id / uid to expose through the accessors.
func New(ctx context.Context, cfg Config, runner *procrunner.Runner) (*Context, error) {
	dir, err := os.MkdirTemp("", "pkgforge-gpg-")
	if err != nil {
		return nil, errors.Wrap(err, "creating gpg home")
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "chmod gpg home")
	}

	gc := &Context{dir: dir, passphrase: cfg.Passphrase}

	cleanup := func(err error) (*Context, error) {
		os.RemoveAll(dir)
		return nil, err
	}

	if _, err := runner.Run(ctx, []string{
		"gpg", "--homedir", dir, "--batch", "--passphrase", cfg.Passphrase, "--import", cfg.KeyFile,
	}, procrunner.RunOpts{Capture: procrunner.CaptureCombined}); err != nil {
		return cleanup(errors.Wrap(err, "importing gpg key"))
	}

	out, err := runner.Run(ctx, []string{
		"gpg", "--homedir", dir, "--batch", "--with-colons", "--fixed-list-mode", "--list-secret-keys",
	}, procrunner.RunOpts{Capture: procrunner.CaptureStdout})
	if err != nil {
		return cleanup(errors.Wrap(err, "listing gpg secret keys"))
	}

	keyID, uid, err := selectKey(out, cfg.ID, cfg.UID)
	if err != nil {
		return cleanup(err)
	}
	gc.keyID = keyID
	gc.uid = uid

	wrapper := filepath.Join(dir, "gpg-wrapper.sh")
	script := fmt.Sprintf("#!/bin/sh\nexec gpg --batch --pinentry-mode loopback --homedir %q --passphrase %q \"$@\"\n", dir, cfg.Passphrase)
	if err := os.WriteFile(wrapper, []byte(script), 0o700); err != nil {
		return cleanup(errors.Wrap(err, "writing gpg wrapper"))
	}
	gc.wrapper = wrapper

	return gc, nil
}

// keyRecord groups one sec record's fingerprint with the uids that follow
// it, mirroring the grouping `gpg --with-colons` produces per key.
type keyRecord struct {
	fingerprint string
	uids        []string
}

// selectKey parses `gpg --with-colons --list-secret-keys` output, picking
// the key whose fingerprint ends (case-insensitively) with wantID, or the
// first key when wantID is empty. It returns the full uppercase
// fingerprint and the uid matching wantUIDHint (or the key's first uid).
func selectKey(out []byte, wantID, wantUIDHint string) (fingerprint, uid string, err error) {
	var keys []*keyRecord
	var current *keyRecord

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "sec":
			current = &keyRecord{}
			keys = append(keys, current)
		case "fpr":
			if current == nil || len(fields) < 10 || current.fingerprint != "" {
				continue
			}
			current.fingerprint = strings.ToUpper(fields[9])
		case "uid":
			if current == nil || len(fields) < 10 {
				continue
			}
			current.uids = append(current.uids, fields[9])
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", errors.Wrap(err, "scanning gpg key listing")
	}

	var selected *keyRecord
	if wantID == "" {
		if len(keys) > 0 {
			selected = keys[0]
		}
	} else {
		for _, k := range keys {
			if len(k.fingerprint) >= 8 && strings.EqualFold(k.fingerprint[len(k.fingerprint)-8:], wantID) {
				selected = k
				break
			}
		}
	}

	if selected == nil || selected.fingerprint == "" {
		if wantID != "" {
			return "", "", errors.Errorf("no secret key found matching id %q", wantID)
		}
		return "", "", errors.New("no secret keys found")
	}

	uid = firstMatchingUID(selected.uids, wantUIDHint)
	return selected.fingerprint, uid, nil
}

func firstMatchingUID(uids []string, hint string) string {
	if hint != "" {
		for _, u := range uids {
			if strings.Contains(u, hint) {
				return u
			}
		}
	}
	if len(uids) > 0 {
		return uids[0]
	}
	return ""
}

// KeyID returns the full, uppercase fingerprint of the selected key.
func (c *Context) KeyID() string { return c.keyID }

// ShortKeyID returns the last 8 hex digits of the fingerprint.
func (c *Context) ShortKeyID() string {
	if len(c.keyID) < 8 {
		return c.keyID
	}
	return c.keyID[len(c.keyID)-8:]
}

// UID returns the uid record selected for this key.
func (c *Context) UID() string { return c.uid }

// Passphrase returns the passphrase protecting the key.
func (c *Context) Passphrase() string { return c.passphrase }

// WrapperPath returns the path to the executable shell wrapper that execs
// gpg with the fixed batch/pinentry/homedir/passphrase flags prepended.
func (c *Context) WrapperPath() string { return c.wrapper }

// HomeDir returns the private GPG home directory.
func (c *Context) HomeDir() string { return c.dir }

// Flag returns prefix+value -- a single argv entry with prefix glued
// directly to the value, e.g. Flag("-k", "DEADBEEF01234567") ->
// "-kDEADBEEF01234567".
func (c *Context) Flag(prefix, value string) string {
	return prefix + value
}

// FlagList returns one argv entry per prefix, each glued to value. Useful
// for callees such as rpm macro definitions that want several related
// flags built from the same value.
func (c *Context) FlagList(value string, prefixes ...string) []string {
	out := make([]string, len(prefixes))
	for i, p := range prefixes {
		out[i] = p + value
	}
	return out
}

// Suffix returns value+suffix, the mirror image of Flag for callees that
// expect the extra text to come after the value.
func (c *Context) Suffix(value, suffix string) string {
	return value + suffix
}

// Close removes the private GPG home directory. It should be deferred by
// the owner immediately after New succeeds.
func (c *Context) Close() error {
	if c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}
