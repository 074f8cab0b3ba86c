// Package password hashes account passwords with argon2id and generates
// temporary credentials for invited admins.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Accounts migrated from the previous platform may still carry bcrypt hashes.
// [Argon2.Verify] accepts them and [Argon2.NeedsUpgrade] reports them so the
// caller can re-hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Log plaintext passwords.
package password
