// Package lock implements the shared-filesystem lock store that keeps two
// graders from working on the same submission, or answering the same
// student's e-mail, at the same time.
//
// # Artifacts
//
// Every lock is exactly one symbolic link inside the class's locks
// directory. The link's name is the slot for what is being locked:
//
//	grading~<lab>~<student>.lock
//	email~~<student>.lock
//
// and the link's target records who holds it:
//
//	<lab>~<student>~<holder>~<kind>~<host>+<pid>+<nonce>
//
// Creating the link with symlink(2) is atomic and fails with EEXIST when
// the slot is taken, so exactly one of any number of concurrent [Store.Lock]
// calls for the same slot succeeds and the rest fail immediately with
// [errors.AlreadyLockedError]. The target is read back with readlink(2);
// nothing is ever opened or parsed from file contents. The nonce is a
// UUIDv7, which makes each acquisition distinguishable from the previous one
// on the same slot and carries the creation time.
//
// Fields are escaped with [util.EscapeName], so no field can contain a
// separator and distinct identities never share a slot.
//
// # Release
//
// [Store.Unlock] removes a slot only while it still points at the handle's
// target. Releasing twice, or releasing after an administrator removed the
// lock and someone else re-locked the pair, leaves the newer lock alone.
//
// # Staleness
//
// There is no expiry. [Descriptor.CheckLiveness] reports a lock whose creating
// process is verifiably gone when it was created on this host; every other
// case is left to an administrator.
package lock
