// Package tokenstore persists OAuth2 credentials across process restarts.
//
// Two backends are composed: the OS-native keyring (preferred) and an
// AES-256-GCM encrypted file under the user's config directory. Writes go
// to the keyring first and fall back to the file; reads prefer the
// keyring. Stored bytes that fail to decrypt, parse, or validate are
// classified as corruption, quarantined (file) or deleted (keyring), and
// surfaced as a typed error so callers re-authenticate instead of
// treating the damage as a silent cache miss.
package tokenstore
