package snapshot

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

type yamlCodec struct{}

func (yamlCodec) Format() Format { return FormatYAML }

func (yamlCodec) Encode(idx *index.Index) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(FromIndex(idx)); err != nil {
		return nil, fmt.Errorf("marshaling yaml snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flushing yaml snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (yamlCodec) Decode(data []byte) (*index.Index, error) {
	var env envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Corrupt("document", "%v", err)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	var req requiredFields
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, apperrors.Corrupt("document", "%v", err)
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Corrupt("document", "%v", err)
	}
	return s.Index()
}
