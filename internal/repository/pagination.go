package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

// normalized clamps the request into the allowed range so callers can pass
// raw query-string values straight through.
func (p PageRequest) normalized() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.PageSize
}

type PageResult[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
