package ledger

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// MarshalDistribution serializes a Distribution to JSON bytes.
// big.Int fields carry their own JSON support.
func MarshalDistribution(d *types.Distribution) ([]byte, error) {
	if d == nil {
		return nil, errors.New("cannot marshal nil Distribution")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal Distribution to JSON")
	}

	return data, nil
}

// UnmarshalDistribution deserializes a Distribution from JSON bytes.
func UnmarshalDistribution(data []byte) (*types.Distribution, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot unmarshal empty data")
	}

	var d types.Distribution
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal JSON to Distribution")
	}

	return &d, nil
}
