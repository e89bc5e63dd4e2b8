package codec

import (
	"encoding/json"
)

// NewJSONCodec creates a new codec using json encoding
func NewJSONCodec() IValueCodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the IValueCodec interface using json encoding.
// Numbers decode as float64 and objects as map[string]any.
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueCodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Name() string {
	return "json"
}

func (j jsonCodecImpl) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonCodecImpl) Decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
