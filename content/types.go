package content

// RemoteEntity is an entity as received from the content service
type RemoteEntity struct {
	ID         int64          `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// NormalizedEntity is a RemoteEntity flattened to id plus attributes
type NormalizedEntity map[string]any

// ID returns the entity id, or 0 when absent
func (e NormalizedEntity) ID() int64 {
	switch v := e["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// String returns a string field, or "" when missing or not a string
func (e NormalizedEntity) String(field string) string {
	s, _ := e[field].(string)
	return s
}

// Meta carries response metadata
type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta is the raw pagination block. The service answers with either
// the page/pageSize or the start/limit form depending on the request.
type PaginationMeta struct {
	Page      int `json:"page,omitempty"`
	PageSize  int `json:"pageSize,omitempty"`
	PageCount int `json:"pageCount,omitempty"`
	Start     int `json:"start,omitempty"`
	Limit     int `json:"limit,omitempty"`
	Total     int `json:"total"`
}

// PaginationInfo is pagination derived from a single response
type PaginationInfo struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	PageCount   int  `json:"pageCount"`
	Total       int  `json:"total"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// CollectionResponse represents a list response
type CollectionResponse struct {
	Data []RemoteEntity `json:"data"`
	Meta Meta           `json:"meta"`
}

// SingleResponse represents a single entity response
type SingleResponse struct {
	Data *RemoteEntity `json:"data"`
	Meta Meta          `json:"meta"`
}
