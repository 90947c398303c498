// Package license implements the SGPT license key lifecycle.
//
// Keys have the form SGPT-<A>-<B>-<C> where A is the issue time in Unix
// milliseconds rendered in base 36, B is a random base-36 segment and C is a
// four character checksum of A+B (see Checksum). The checksum is an
// integrity hint against typos, not a signature.
//
// Manager issues, verifies and revokes licenses on top of a Store.
// Verification runs these checks in order and stops at the first failure:
//
//	1. format (and the checksum when strict mode is on)
//	2. existence
//	3. revocation
//	4. expiry, derived from ExpiresAt at read time
//	5. email binding, when an email is supplied
//
// PaymentService binds provider transactions to licenses. A pending payment
// record is reserved with a conditional create before the license is issued,
// so a transaction id yields at most one license even across replicas that
// share a store. Reconcile reports the records a crash between the two
// writes can leave behind.
package license
