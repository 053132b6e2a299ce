package server

import (
	"encoding/base64"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// paginate returns the indices of one page out of total items. Page tokens
// are base64-encoded offsets.
func paginate(total int, pageSize int, pageToken string) (indices []int, nextToken string, err error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	offset := 0
	if pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err != nil {
			return nil, "", status.Errorf(codes.InvalidArgument, "invalid page_token %q", pageToken)
		}
		offset, err = strconv.Atoi(string(decoded))
		if err != nil || offset < 0 {
			return nil, "", status.Errorf(codes.InvalidArgument, "invalid page_token %q", pageToken)
		}
	}

	if offset >= total {
		return nil, "", nil
	}

	end := offset + pageSize
	if end > total {
		end = total
	}

	indices = make([]int, end-offset)
	for i := range indices {
		indices[i] = offset + i
	}

	if end < total {
		nextToken = base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	}
	return indices, nextToken, nil
}
