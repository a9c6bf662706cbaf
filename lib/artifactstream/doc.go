// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstream multiplexes the outputs of one compile job
// (object file, debug info, stdout, stderr) into a single byte stream
// so that they travel over one RPC body.
//
// [Pack] concatenates the artifacts in order with no separators or
// padding and returns one [Cookie] per artifact. [Unpack] walks the
// cookies in the same order and copies exactly Cookie.Length bytes
// from the stream to the destination registered for the cookie's
// type. Boundaries exist only in the cookies: a reader that consumes
// cookies out of order reads garbage.
//
// On the wire the payload is wrapped by an [Envelope]: the cookie
// list, an optional compression tag (lz4 block or zstd), the raw and
// wire lengths, and a BLAKE3 digest of the uncompressed payload.
// [Seal] produces the envelope and wire bytes; [Open] reverses it and
// verifies the digest.
package artifactstream
