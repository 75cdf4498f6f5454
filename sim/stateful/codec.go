package stateful

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

func init() {
	gob.Register(map[string]any{})
}

// Codec determines how states is encoded.
type Codec interface {
	Encode(w io.Writer, data map[string]any) error
	Decode(r io.Reader) (map[string]any, error)
}

// JSONCodec encodes states as a JSON object.
type JSONCodec struct{}

// Encode writes the data map as JSON to the provided writer.
func (c JSONCodec) Encode(w io.Writer, data map[string]any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(data)
}

// Decode reads JSON data from the reader and returns it as a map.
func (c JSONCodec) Decode(r io.Reader) (map[string]any, error) {
	decoder := json.NewDecoder(r)

	var data map[string]any

	err := decoder.Decode(&data)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// GobCodec encodes states with encoding/gob. Unlike JSON, it keeps the Go
// types of the values.
type GobCodec struct{}

// Encode writes the data map as gob to the provided writer.
func (c GobCodec) Encode(w io.Writer, data map[string]any) error {
	return gob.NewEncoder(w).Encode(data)
}

// Decode reads gob data from the reader and returns it as a map.
func (c GobCodec) Decode(r io.Reader) (map[string]any, error) {
	var data map[string]any

	err := gob.NewDecoder(r).Decode(&data)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// CodecByName returns the codec registered under name ("json" or "gob").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "gob":
		return GobCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
