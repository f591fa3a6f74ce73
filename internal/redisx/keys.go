package redisx

import "time"

const (
	// Product read cache: product:{product_id} -> product JSON
	KeyProduct = "product:%s"

	// Consumer-side event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLProductCache = 60 * time.Second
	TTLDedup        = 48 * time.Hour
)
