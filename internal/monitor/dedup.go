package monitor

import (
	"sync"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

const dedupWindowSize = 8192

// Deduper 按（签名，来源）去重最近窗口内的交易事件。
// 窗口有界，旧条目按先进先出淘汰。
type Deduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewDeduper 创建去重器
func NewDeduper() *Deduper {
	return &Deduper{
		seen: make(map[string]struct{}, dedupWindowSize),
	}
}

// Seen 返回该事件是否已出现过，未出现时登记
func (d *Deduper) Seen(signature string, venue types.Venue) bool {
	key := signature + "|" + string(venue)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
	if len(d.order) > dedupWindowSize {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return false
}
