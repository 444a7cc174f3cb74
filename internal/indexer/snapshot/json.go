package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

// jsonCodec writes plain JSON and reads JSON with comments and trailing
// commas, so snapshots can be annotated by hand.
type jsonCodec struct{}

func (jsonCodec) Format() Format { return FormatJSON }

func (jsonCodec) Encode(idx *index.Index) ([]byte, error) {
	data, err := json.MarshalIndent(FromIndex(idx), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling json snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func (jsonCodec) Decode(data []byte) (*index.Index, error) {
	clean := jsonc.ToJSON(data)
	var env envelope
	if err := json.Unmarshal(clean, &env); err != nil {
		return nil, jsonCorrupt(err)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	var req requiredFields
	if err := json.Unmarshal(clean, &req); err != nil {
		return nil, jsonCorrupt(err)
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(clean, &s); err != nil {
		return nil, jsonCorrupt(err)
	}
	return s.Index()
}

func jsonCorrupt(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperrors.Corrupt(typeErr.Field, "%v", err)
	}
	return apperrors.Corrupt("document", "%v", err)
}
