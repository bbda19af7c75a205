// Package provisioning issues broker credentials and topic grants to
// garden devices.
//
// Registering a device is idempotent and always rotates its secret: the
// caller gets a fresh 8-character secret derived from a random UUID,
// stored only as an Argon2id hash in the broker's credential table. A
// device that loses its credentials is simply re-provisioned.
//
// Registration also assigns ownership. Moving a device between owners
// delegates to the device directory, which purges the previous owner's
// history; re-provisioning under the same owner preserves it.
//
// Topic grants scope each device to its own topic subtree. The backend
// itself is seeded once at startup as a broker superuser with a grant
// covering the whole realm.
package provisioning
