package streams

import (
	"encoding/json"
	"time"
)

// Chunk is a single element of a run stream. Seq is contiguous from 0
// within one (run, key) sequence.
type Chunk struct {
	Run  string          `json:"run"  bson:"run"`
	Key  string          `json:"key"  bson:"key"`
	Seq  int64           `json:"seq"  bson:"seq"`
	Data json.RawMessage `json:"data" bson:"data"`
	At   time.Time       `json:"at"   bson:"at"`
}

func (c Chunk) ID() string {
	return c.Run + "/" + c.Key
}

// Event is what the pubsub layer carries between relay nodes.
type Event struct {
	Origin string `json:"origin"`
	Close  bool   `json:"close,omitempty"`
	Chunk  Chunk  `json:"chunk"`
}

func (e Event) GetID() string {
	return e.Chunk.ID()
}

type StreamInfo struct {
	Run    string `json:"run"`
	Key    string `json:"key"`
	Length int64  `json:"length"`
	Closed bool   `json:"closed"`
}
