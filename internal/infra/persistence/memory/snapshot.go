package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the durable stores, one JSON payload each.
const (
	BucketUnits  = "units"
	BucketChains = "chains"
	BucketGroups = "groups"
	BucketMeta   = "meta"
)

// Buckets lists every bucket in write order.
var Buckets = []string{BucketUnits, BucketChains, BucketGroups, BucketMeta}

type snapshotMeta struct {
	NextID uint32 `json:"next_id"`
}

// EncodeBucket marshals one bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketUnits:
		return json.Marshal(s.Units)
	case BucketChains:
		return json.Marshal(s.Chains)
	case BucketGroups:
		return json.Marshal(s.Groups)
	case BucketMeta:
		return json.Marshal(snapshotMeta{NextID: uint32(s.NextID)})
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals one bucket payload into the snapshot. Unknown buckets are
// ignored so that newer databases can still be read.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch bucket {
	case BucketUnits:
		err = json.Unmarshal(payload, &s.Units)
	case BucketChains:
		err = json.Unmarshal(payload, &s.Chains)
	case BucketGroups:
		err = json.Unmarshal(payload, &s.Groups)
	case BucketMeta:
		var meta snapshotMeta
		err = json.Unmarshal(payload, &meta)
		s.NextID = TemplateID(meta.NextID)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
