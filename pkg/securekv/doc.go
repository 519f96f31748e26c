// Package securekv stores named values in a platform secret vault when one is
// available and in an ordinary persistent map, sealed with an authenticated
// cipher, when it is not.
//
// # Backends
//
// A Store is built from up to two collaborators:
//
//   - a Vault (OS keychain, cloud secret manager) that already keeps values
//     confidential at rest, and
//   - a PersistentMap (files, bbolt, SQL) that provides no confidentiality;
//     every value written to it is first sealed by the Store's Cipher.
//
// Before each operation the Store asks the vault whether it is available and
// routes the call accordingly. Nothing about the choice is remembered, so an
// environment where the vault comes and goes is handled without restarts.
// Entries written through one route are not visible through the other.
//
// # Values
//
// Values are strings, numbers, booleans or records (JSON objects or arrays):
//
//	session, _ := securekv.NewRecord(map[string]any{"userId": 42, "active": true})
//	if err := store.Put(ctx, "session", session); err != nil {
//	    return err
//	}
//
//	v, err := store.Get(ctx, "session")
//	if err != nil {
//	    return err
//	}
//	if v.IsNull() {
//	    // not stored, or the fallback entry could not be decrypted
//	}
//
// Strings are stored verbatim and everything else as canonical JSON. Each
// payload carries a short tag recording which of the two was used, so Get
// never has to guess. Stores written without tags can still be read; see
// Options.Encoding and Options.DisableLegacyRead.
//
// # Errors
//
// Every operation returns its failures as a *StoreError carrying an
// ErrorKind. A missing key is not an error. A fallback entry that fails to
// decrypt (wrong key, corruption, tampering) is logged and reported as Null so
// a damaged cache entry never breaks the caller. Sealing failures on Put are
// always hard errors: plaintext is never written to the fallback map.
package securekv
