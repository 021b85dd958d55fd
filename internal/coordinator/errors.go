package coordinator

import "errors"

var errProgressRequiresStreaming = errors.New("notify mode Progress requires response mode Chunked or Streamed")
