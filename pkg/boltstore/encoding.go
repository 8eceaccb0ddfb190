package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

func init() {
	gob.Register(gamedb.Object{})
	gob.Register(Account{})
	gob.Register(Record{})
	gob.Register(Stats{})
}

// encode serializes a value to bytes using gob.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes gob bytes into v.
func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
