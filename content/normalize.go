package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrAlreadyNormalized is returned by NormalizeRaw for a flat {id, ...fields} object
var ErrAlreadyNormalized = errors.New("content: entity is already normalized")

// NormalizeEntity flattens a wrapped entity into a new map. The server id wins
// over an attribute named "id".
func NormalizeEntity(e *RemoteEntity) NormalizedEntity {
	if e == nil {
		return nil
	}
	out := make(NormalizedEntity, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		out[k] = v
	}
	out["id"] = e.ID
	return out
}

// NormalizeEntities flattens a list, preserving order. It never returns nil.
func NormalizeEntities(entities []RemoteEntity) []NormalizedEntity {
	out := make([]NormalizedEntity, 0, len(entities))
	for i := range entities {
		out = append(out, NormalizeEntity(&entities[i]))
	}
	return out
}

// NormalizeRaw decodes and flattens a wrapped entity from raw JSON
func NormalizeRaw(raw json.RawMessage) (NormalizedEntity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}

	attrs, wrapped := probe["attributes"]
	if !wrapped {
		if _, hasID := probe["id"]; hasID {
			return nil, ErrAlreadyNormalized
		}
		return nil, fmt.Errorf("decode entity: missing attributes")
	}
	if t := bytes.TrimSpace(attrs); len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("decode entity: attributes is not an object")
	}

	var entity RemoteEntity
	if err := json.Unmarshal(trimmed, &entity); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return NormalizeEntity(&entity), nil
}

// ExtractPagination derives PaginationInfo from response metadata.
// It returns nil when the response carried no pagination block.
func ExtractPagination(meta Meta) *PaginationInfo {
	pm := meta.Pagination
	if pm == nil {
		return nil
	}

	info := &PaginationInfo{
		Page:      pm.Page,
		PageSize:  pm.PageSize,
		PageCount: pm.PageCount,
		Total:     pm.Total,
	}

	if pm.Page == 0 && pm.PageSize == 0 && pm.Limit > 0 {
		info.PageSize = pm.Limit
		info.Page = pm.Start/pm.Limit + 1
		info.PageCount = ceilDiv(pm.Total, pm.Limit)
	} else if info.PageCount == 0 && info.Total > 0 && info.PageSize > 0 {
		info.PageCount = ceilDiv(info.Total, info.PageSize)
	}

	info.HasNextPage = info.Page < info.PageCount
	info.HasPrevPage = info.Page > 1
	return info
}

func ceilDiv(total, size int) int {
	if size <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(size)))
}
