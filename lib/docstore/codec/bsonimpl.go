package codec

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// NewBSONCodec creates a new codec using BSON, the encoding MongoDB stores documents in
func NewBSONCodec() IValueCodec {
	return &bsonCodecImpl{}
}

// bsonCodecImpl implements the IValueCodec interface using bson encoding.
// A bare value is not a valid BSON document, so it is wrapped in a single-field document.
type bsonCodecImpl struct {
}

type bsonEnvelope struct {
	V any `bson:"v"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueCodec)
// --------------------------------------------------------------------------

func (c bsonCodecImpl) Name() string {
	return "bson"
}

func (c bsonCodecImpl) Encode(v any) ([]byte, error) {
	return bson.Marshal(bson.D{{Key: "v", Value: v}})
}

func (c bsonCodecImpl) Decode(b []byte) (any, error) {
	var env bsonEnvelope
	if err := bson.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	return normalizeBSON(env.V), nil
}

// normalizeBSON maps generic binary data back to a byte slice
func normalizeBSON(v any) any {
	if bin, ok := v.(bson.Binary); ok && bin.Subtype == 0x00 {
		return bin.Data
	}
	return v
}
