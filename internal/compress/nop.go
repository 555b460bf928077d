package compress

// Nop stores payloads as they are.
type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) Name() string {
	return NopCodec
}

func (Nop) Encode(data []byte) ([]byte, error) {
	return data, nil
}

func (Nop) Decode(data []byte) ([]byte, error) {
	return data, nil
}
