// Package codec provides value serialization for document engines that keep
// keys and values as bytes. It defines a common interface and two implementations.
//
// Key Components:
//
//   - IValueCodec: Core interface that all codec implementations must satisfy.
//
//   - bsonCodecImpl: BSON encoding through the MongoDB driver. Values decode to the
//     same Go types the MongoDB engine returns (int32 for small Go ints, bson.D for
//     embedded documents), which keeps engines interchangeable. This is the default.
//
//   - jsonCodecImpl: JSON encoding, useful when the stored bytes should be readable
//     by other tools. Numbers decode as float64.
//
// Keys are compared by their encoded form (see KeyID). Numbers are normalized
// first so they compare by value like in MongoDB, 1 and "1" stay different keys.
// Maps are not supported as keys.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use.
package codec
