// Package document seals doctor verification files at rest.
//
// An upload is hashed with a keyed BLAKE3 hash for de-duplication, optionally
// compressed, and encrypted with age to the operator's X25519 recipient. The
// sealed envelope is self-describing: the age plaintext starts with a one
// byte compression tag and the big-endian uncompressed length, so Open needs
// nothing but the operator identity.
package document
