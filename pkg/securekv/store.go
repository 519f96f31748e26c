package securekv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Logger receives diagnostics about soft failures. Messages never contain
// values or key material.
type Logger interface {
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

// Observer receives operation telemetry.
type Observer interface {
	ObserveOperation(op string, backend BackendKind, result string, elapsed time.Duration)
	ObserveSoftFailure(reason string)
	ObserveBackendSelected(backend BackendKind)
}

// Operation results reported to the Observer.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultError       = "error"
	ResultSoftFailure = "soft_failure"
)

// Soft failure reasons reported to the Observer.
const (
	ReasonDecrypt     = "decrypt"
	ReasonDecodeValue = "decode"
)

// Options configures a Store. At least one of Vault or Fallback must be set,
// and Fallback requires Cipher.
type Options struct {
	Vault    Vault
	Fallback PersistentMap
	Cipher   Cipher

	// Encoding controls the write format. The zero value writes tagged
	// payloads.
	Encoding Encoding
	// DisableLegacyRead stops Get from guessing the encoding of untagged
	// payloads; they are returned as strings.
	DisableLegacyRead bool

	// ReservedKeys are refused with InvalidKey. The vault item holding the
	// fallback key goes here so callers can't overwrite or delete it.
	ReservedKeys []string

	Logger   Logger
	Observer Observer
}

// Store persists values under string keys, preferring the vault and falling
// back to cipher-protected entries in the persistent map whenever the vault
// reports itself unavailable. The choice is made again on every call.
//
// A Store is safe for concurrent use. Concurrent puts to the same key are
// last-write-wins.
type Store struct {
	vault    Vault
	primary  Backend
	fallback Backend
	closers  []io.Closer

	encoding   Encoding
	legacyRead bool
	reserved   map[string]struct{}
	log        Logger
	obs        Observer
}

// New validates opts and returns a Store.
func New(opts Options) (*Store, error) {
	if opts.Vault == nil && opts.Fallback == nil {
		return nil, errors.New("securekv: a vault or a fallback map is required")
	}
	if opts.Fallback != nil && opts.Cipher == nil {
		return nil, errors.New("securekv: fallback map requires a cipher")
	}

	s := &Store{
		vault:      opts.Vault,
		encoding:   opts.Encoding,
		legacyRead: !opts.DisableLegacyRead,
		log:        opts.Logger,
		obs:        opts.Observer,
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if len(opts.ReservedKeys) > 0 {
		s.reserved = make(map[string]struct{}, len(opts.ReservedKeys))
		for _, k := range opts.ReservedKeys {
			s.reserved[k] = struct{}{}
		}
	}

	if opts.Vault != nil {
		s.primary = NewVaultBackend(opts.Vault)
		s.addCloser(opts.Vault)
	}
	if opts.Fallback != nil {
		s.fallback = NewEncryptedBackend(opts.Fallback, opts.Cipher)
		s.addCloser(opts.Fallback)
		s.addCloser(opts.Cipher)
	}
	return s, nil
}

func (s *Store) checkKey(key string) error {
	if key == "" {
		return errors.New("key is empty")
	}
	if _, ok := s.reserved[key]; ok {
		return ErrReservedKey
	}
	return nil
}

func (s *Store) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// Backend reports which route the next operation would take, or BackendNone
// if neither is usable right now.
func (s *Store) Backend(ctx context.Context) BackendKind {
	b, err := s.selectBackend(ctx)
	if err != nil {
		return BackendNone
	}
	return b.Kind()
}

func (s *Store) selectBackend(ctx context.Context) (Backend, error) {
	if s.primary != nil && s.vault.IsAvailable(ctx) {
		s.obs.ObserveBackendSelected(BackendVault)
		return s.primary, nil
	}
	if s.fallback != nil {
		s.obs.ObserveBackendSelected(BackendEncryptedFallback)
		return s.fallback, nil
	}
	return nil, errors.New("vault is unavailable and no fallback map is configured")
}

// Put stores v under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, v Value) (err error) {
	const op = "put"
	start := time.Now()
	backend := BackendNone
	defer func() { s.finish(op, backend, err, start) }()

	if err := s.checkKey(key); err != nil {
		return s.fail(op, key, InvalidKey, backend, err)
	}

	payload, err := encodeValue(v, s.encoding)
	if err != nil {
		return s.fail(op, key, SerializationError, backend, err)
	}

	b, err := s.selectBackend(ctx)
	if err != nil {
		return s.fail(op, key, BackendUnavailable, backend, err)
	}
	backend = b.Kind()

	if err := b.SetItem(ctx, key, payload); err != nil {
		var cf *cryptoFault
		if errors.As(err, &cf) {
			return s.fail(op, key, CryptoError, backend, cf.err)
		}
		return s.fail(op, key, BackendUnavailable, backend, err)
	}
	return nil
}

// PutAny converts v with FromAny and stores it.
func (s *Store) PutAny(ctx context.Context, key string, v any) error {
	value, err := FromAny(v)
	if err != nil {
		return &StoreError{Op: "put", Key: key, Kind: SerializationError, Err: err}
	}
	return s.Put(ctx, key, value)
}

// Get returns the value stored under key. A missing key yields Null and no
// error. A fallback entry that can't be decrypted is logged and also yields
// Null and no error.
func (s *Store) Get(ctx context.Context, key string) (v Value, err error) {
	const op = "get"
	start := time.Now()
	backend := BackendNone
	result := ResultOK
	defer func() {
		if err == nil {
			s.obs.ObserveOperation(op, backend, result, time.Since(start))
			return
		}
		s.finish(op, backend, err, start)
	}()

	if err := s.checkKey(key); err != nil {
		return Null(), s.fail(op, key, InvalidKey, backend, err)
	}

	b, err := s.selectBackend(ctx)
	if err != nil {
		return Null(), s.fail(op, key, BackendUnavailable, backend, err)
	}
	backend = b.Kind()

	payload, ok, err := b.GetItem(ctx, key)
	if err != nil {
		var cf *cryptoFault
		if errors.As(err, &cf) {
			s.log.Warn("securekv: dropping unreadable entry %q on %s: %v", key, backend, cf.err)
			s.obs.ObserveSoftFailure(ReasonDecrypt)
			result = ResultSoftFailure
			return Null(), nil
		}
		return Null(), s.fail(op, key, BackendUnavailable, backend, err)
	}
	if !ok {
		result = ResultNotFound
		return Null(), nil
	}

	v, decodeErr := decodeValue(payload, s.legacyRead)
	if decodeErr != nil {
		s.log.Warn("securekv: entry %q on %s returned as raw string: %v", key, backend, decodeErr)
		s.obs.ObserveSoftFailure(ReasonDecodeValue)
		result = ResultSoftFailure
	}
	return v, nil
}

// Delete removes key from the currently selected backend. Deleting a
// missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	const op = "delete"
	start := time.Now()
	backend := BackendNone
	defer func() { s.finish(op, backend, err, start) }()

	if err := s.checkKey(key); err != nil {
		return s.fail(op, key, InvalidKey, backend, err)
	}

	b, err := s.selectBackend(ctx)
	if err != nil {
		return s.fail(op, key, BackendUnavailable, backend, err)
	}
	backend = b.Kind()

	if err := b.DeleteItem(ctx, key); err != nil {
		return s.fail(op, key, BackendUnavailable, backend, err)
	}
	return nil
}

// Exists reports whether key has an entry on the selected backend. Fallback
// entries are not decrypted, so an entry that Get would drop still counts.
func (s *Store) Exists(ctx context.Context, key string) (found bool, err error) {
	const op = "exists"
	start := time.Now()
	backend := BackendNone
	defer func() { s.finish(op, backend, err, start) }()

	if err := s.checkKey(key); err != nil {
		return false, s.fail(op, key, InvalidKey, backend, err)
	}

	b, err := s.selectBackend(ctx)
	if err != nil {
		return false, s.fail(op, key, BackendUnavailable, backend, err)
	}
	backend = b.Kind()

	found, err = b.Contains(ctx, key)
	if err != nil {
		return false, s.fail(op, key, BackendUnavailable, backend, err)
	}
	return found, nil
}

// Close releases collaborators that hold resources (open files, database
// handles, the key enclave).
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("securekv: close: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Store) fail(op, key string, kind ErrorKind, backend BackendKind, cause error) error {
	err := &StoreError{Op: op, Key: key, Kind: kind, Backend: backend, Err: cause}
	s.log.Debug("%v", err)
	return err
}

func (s *Store) finish(op string, backend BackendKind, err error, start time.Time) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	s.obs.ObserveOperation(op, backend, result, time.Since(start))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, BackendKind, string, time.Duration) {}
func (nopObserver) ObserveSoftFailure(string)                                 {}
func (nopObserver) ObserveBackendSelected(BackendKind)                        {}
