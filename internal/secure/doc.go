// Package secure keeps encryption keys in protected memory.
//
// KeyBuffer wraps a memguard enclave. Between uses the key is held
// encrypted (XSalsa20Poly1305) in memory that is locked against swapping;
// WithKey exposes the plaintext only inside a guarded, mlocked buffer that is
// wiped as soon as the callback returns:
//
//	buf, err := secure.NewKeyBuffer(key) // key is wiped
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	err = buf.WithKey(func(k []byte) error {
//	    block, err := aes.NewCipher(k)
//	    ...
//	})
//
// If mlock is unavailable (RLIMIT_MEMLOCK on Linux) memguard degrades to
// ordinary memory. Call memguard.Purge at process exit to wipe everything.
//
// This does not protect against an attacker with access to the running
// process or against hardware attacks.
package secure
